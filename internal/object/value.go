package object

import (
	"fmt"
	"strconv"
)

// Equal compares two attribute values loosely. Request data arrives as strings or JSON
// numbers while object attributes are typed, so both sides are normalised to their text
// form first: nil is "", true is "1", false is "", whole floats drop the fraction.
func Equal(a, b any) bool {
	return Text(a) == Text(b)
}

// Text returns the normalised text form used by Equal.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Int returns the integer form of v, treating booleans as 0/1 and unparsable text as 0.
func Int(v any) int {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	}
	n, err := strconv.ParseFloat(Text(v), 64)
	if err != nil {
		return 0
	}
	return int(n)
}

