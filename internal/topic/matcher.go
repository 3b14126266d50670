package topic

import (
	"fmt"
	"strings"
)

// Level separator and wildcard tokens.
const (
	separator      = "/"
	singleLevel    = "+"
	multiLevel     = "#"
	reservedPrefix = "$"
)

// Matcher decides whether a topic filter matches a concrete topic.
//
// Implementations must be safe for concurrent use.
type Matcher interface {
	Matches(pattern, topic string) bool
}

// MQTT is the standard MQTT subscription matcher.
type MQTT struct{}

// Default is the matcher used when callers do not supply their own.
var Default Matcher = MQTT{}

// Matches reports whether pattern matches topic using MQTT wildcard rules.
//
// A "#" anywhere other than the final level makes the pattern match nothing.
func (MQTT) Matches(pattern, topic string) bool {
	if pattern == "" {
		return false
	}

	patternLevels := strings.Split(pattern, separator)
	topicLevels := strings.Split(topic, separator)

	// Reserved ($SYS etc.) topics are hidden from leading wildcards.
	if strings.HasPrefix(topic, reservedPrefix) &&
		(patternLevels[0] == singleLevel || patternLevels[0] == multiLevel) {
		return false
	}

	for i, level := range patternLevels {
		switch level {
		case multiLevel:
			return i == len(patternLevels)-1
		case singleLevel:
			if i >= len(topicLevels) {
				return false
			}
		default:
			if i >= len(topicLevels) || level != topicLevels[i] {
				return false
			}
		}
	}

	return len(patternLevels) == len(topicLevels)
}

// Matches reports whether pattern matches topic using the MQTT matcher.
func Matches(pattern, topic string) bool {
	return MQTT{}.Matches(pattern, topic)
}

// ValidatePattern checks that pattern is a well-formed MQTT topic filter.
//
// Wildcards must occupy a whole level and "#" may only appear last.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPattern)
	}

	levels := strings.Split(pattern, separator)
	for i, level := range levels {
		if level == singleLevel || level == multiLevel {
			if level == multiLevel && i != len(levels)-1 {
				return fmt.Errorf("%w: %q must be the last level", ErrInvalidPattern, multiLevel)
			}
			continue
		}
		if strings.ContainsAny(level, singleLevel+multiLevel) {
			return fmt.Errorf("%w: wildcard inside level %q", ErrInvalidPattern, level)
		}
	}

	return nil
}
