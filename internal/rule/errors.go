package rule

import (
	"errors"
	"fmt"
)

// Syntax error kinds. A *SyntaxError unwraps to exactly one of these.
var (
	// ErrInvalidSelect is returned when the SELECT ... FROM structure is missing.
	ErrInvalidSelect = errors.New("rule: invalid SELECT clause")

	// ErrInvalidFrom is returned when the topic pattern is missing or unquoted.
	ErrInvalidFrom = errors.New("rule: invalid FROM clause")

	// ErrInvalidCondition is returned when a WHERE sub-expression is not recognised.
	ErrInvalidCondition = errors.New("rule: invalid WHERE condition")
)

// Saved rule errors.
var (
	// ErrRuleNotFound is returned when a saved rule name does not exist.
	ErrRuleNotFound = errors.New("rule: saved rule not found")

	// ErrRuleExists is returned when saving under a name that is already taken.
	ErrRuleExists = errors.New("rule: saved rule already exists")

	// ErrInvalidName is returned when a saved rule name is empty or too long.
	ErrInvalidName = errors.New("rule: invalid name")
)

// SyntaxError describes why a rule could not be parsed.
//
// Use errors.Is with ErrInvalidSelect, ErrInvalidFrom or ErrInvalidCondition
// to classify it.
type SyntaxError struct {
	Kind     error  // one of the ErrInvalid* sentinels
	Fragment string // the text that failed to parse
	Reason   string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: %s near %q", e.Kind, e.Reason, e.Fragment)
}

// Unwrap returns the sentinel kind.
func (e *SyntaxError) Unwrap() error {
	return e.Kind
}

func syntaxErr(kind error, fragment, reason string) *SyntaxError {
	return &SyntaxError{Kind: kind, Fragment: fragment, Reason: reason}
}
