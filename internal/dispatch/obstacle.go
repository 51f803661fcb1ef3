// ABOUTME: Pure obstacle severity classification for accessibility feedback
// ABOUTME: Distances are in meters; no processing backend is involved

package dispatch

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Severity classifies how urgent an obstacle at distance is.
func Severity(distance float64) string {
	switch {
	case distance < 1:
		return "high"
	case distance < 3:
		return "medium"
	default:
		return "low"
	}
}

// Feedback is the data of an accessibility:feedback result.
type Feedback struct {
	Severity  string  `json:"severity"`
	Distance  float64 `json:"distance"`
	Direction string  `json:"direction,omitempty"`
	Type      string  `json:"type,omitempty"`
	Message   string  `json:"message"`
}

func obstacleFeedback(distance float64, direction, kind string) Feedback {
	sev := Severity(distance)
	what := "Obstacle"
	if kind != "" {
		first, size := utf8.DecodeRuneInString(kind)
		what = string(unicode.ToUpper(first)) + kind[size:]
	}
	where := "to the " + direction
	switch strings.ToLower(direction) {
	case "", "ahead", "front", "forward":
		where = "ahead"
	}
	msg := fmt.Sprintf("%s %.1f meters %s", what, distance, where)
	switch sev {
	case "high":
		msg = "Stop. " + msg
	case "medium":
		msg = "Caution. " + msg
	}
	return Feedback{Severity: sev, Distance: distance, Direction: direction, Type: kind, Message: msg}
}
