package rule

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericText recognises decimal numbers in string form ("21", "-3.5", "1e3").
var numericText = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// number is a comparison operand normalised to int64 or float64.
type number struct {
	i     int64
	f     float64
	isInt bool
}

// toNumber converts numeric Go values and numeric strings. Booleans and
// everything else are not numbers.
func toNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n), isInt: true}, true
	case int8:
		return number{i: int64(n), isInt: true}, true
	case int16:
		return number{i: int64(n), isInt: true}, true
	case int32:
		return number{i: int64(n), isInt: true}, true
	case int64:
		return number{i: n, isInt: true}, true
	case uint8:
		return number{i: int64(n), isInt: true}, true
	case uint16:
		return number{i: int64(n), isInt: true}, true
	case uint32:
		return number{i: int64(n), isInt: true}, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return number{f: float64(n)}, true
		}
		return number{i: int64(n), isInt: true}, true
	case uint64:
		if n > math.MaxInt64 {
			return number{f: float64(n)}, true
		}
		return number{i: int64(n), isInt: true}, true
	case float32:
		return floatNumber(float64(n))
	case float64:
		return floatNumber(n)
	case json.Number:
		return parseNumber(n.String())
	case string:
		return parseNumber(strings.TrimSpace(n))
	default:
		return number{}, false
	}
}

func floatNumber(f float64) (number, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return number{}, false
	}
	return number{f: f}, true
}

func parseNumber(s string) (number, bool) {
	if !numericText.MatchString(s) {
		return number{}, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return number{i: i, isInt: true}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return number{}, false
	}
	return floatNumber(f)
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

// compare returns -1, 0 or 1.
func (n number) compare(other number) int {
	if n.isInt && other.isInt {
		switch {
		case n.i < other.i:
			return -1
		case n.i > other.i:
			return 1
		default:
			return 0
		}
	}

	a, b := n.float(), other.float()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// toText renders a field value the way it is compared and pattern-matched.
func toText(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// formatLiteral renders a parsed comparison value so Parse reads it back
// as the same type.
func formatLiteral(v any) string {
	switch val := v.(type) {
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	default:
		return quote(toText(val))
	}
}

// quote wraps s in single quotes, or double quotes when s contains a
// single quote.
func quote(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + s + "'"
}
