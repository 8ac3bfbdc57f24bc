package serp

import (
	"encoding/json"
	"strconv"
	"strings"
)

// countFromJSON reads a total reported as a JSON number or a numeric string
// ("1,230,000"). Anything else, including null, absent or negative values,
// yields Infinite with ok false.
func countFromJSON(raw json.RawMessage) (c Count, ok bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return Infinite, false
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return Infinite, false
		}
		s = str
	}
	return countFromText(s)
}

// countFromText parses a digit run that may carry thousands separators.
func countFromText(s string) (Count, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return Infinite, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") {
		if f < 0 || f != float64(int64(f)) {
			return Infinite, false
		}
		return Count(int64(f)), true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return Infinite, false
	}
	return Count(n), true
}
