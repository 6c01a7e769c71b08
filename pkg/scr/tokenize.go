package scr

import "strings"

// Group is one parenthesized (key v1 v2 ...) element.
type Group struct {
	Key    string
	Values []string
}

// Tokenize splits wire text into groups without interpreting values.
// Surrounding whitespace, a trailing sentinel character and the outer
// parentheses are removed first; groups are then split on ")(".
func Tokenize(text string) []Group {
	body := trimFrame(text)
	if body == "" {
		return nil
	}

	parts := strings.Split(body, ")(")
	groups := make([]Group, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		groups = append(groups, Group{Key: fields[0], Values: fields[1:]})
	}
	return groups
}

func trimFrame(text string) string {
	s := strings.TrimSpace(text)
	// the server terminates every datagram with one sentinel byte, usually NUL
	if n := len(s); n > 0 && s[n-1] != ')' {
		s = strings.TrimSpace(s[:n-1])
	}
	s = strings.TrimLeft(s, "(")
	s = strings.TrimRight(s, ")")
	return s
}

// Keys returns the group keys in order.
func Keys(groups []Group) []string {
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return keys
}
