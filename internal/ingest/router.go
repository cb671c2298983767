package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Category identifies the second segment of the naboom topic hierarchy.
// The set is closed: dispatch switches over these values exhaustively
// and anything else lands in CategoryUnknown.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryCommunity
	CategorySystem
	CategoryNotifications
	CategoryAlerts
	CategoryHealth
)

// String returns the topic-segment spelling of the category.
func (c Category) String() string {
	switch c {
	case CategoryCommunity:
		return "community"
	case CategorySystem:
		return "system"
	case CategoryNotifications:
		return "notifications"
	case CategoryAlerts:
		return "alerts"
	case CategoryHealth:
		return "health"
	default:
		return "unknown"
	}
}

func parseCategory(s string) Category {
	switch s {
	case "community":
		return CategoryCommunity
	case "system":
		return CategorySystem
	case "notifications":
		return CategoryNotifications
	case "alerts":
		return CategoryAlerts
	case "health":
		return CategoryHealth
	default:
		return CategoryUnknown
	}
}

// Route is the parsed form of a naboom/{category}/{...segments} topic.
type Route struct {
	Category Category
	// Segments holds everything after the category, in order.
	Segments []string
}

// Routing errors. ErrUnknownCategory marks a well-formed topic from a
// future message shape; callers log it and move on without recording
// an error. Shape errors are genuine faults.
var (
	ErrTopicShape      = errors.New("ingest: malformed topic")
	ErrUnknownCategory = errors.New("ingest: unrecognized topic category")
)

// Minimum segment counts after the category. Community topics carry a
// channel id and an action; the rest carry a single identifier.
const (
	minCommunitySegments = 2
	minOtherSegments     = 1
)

// ParseRoute splits a broker topic into its routed form.
//
// The topic must start with the naboom/ prefix and carry at least a
// category segment. Arity is checked per category so handlers can
// index Segments without guarding.
func ParseRoute(topic string) (Route, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "naboom" {
		return Route{}, fmt.Errorf("%w: %q is not under naboom/", ErrTopicShape, topic)
	}

	category := parseCategory(parts[1])
	if category == CategoryUnknown {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownCategory, parts[1])
	}

	segments := parts[2:]
	minSegments := minOtherSegments
	if category == CategoryCommunity {
		minSegments = minCommunitySegments
	}
	if len(segments) < minSegments {
		return Route{}, fmt.Errorf("%w: %q needs at least %d segment(s) after %s",
			ErrTopicShape, topic, minSegments, category)
	}

	return Route{Category: category, Segments: segments}, nil
}
