package util

import (
	"fmt"
	"strings"
)

// RewriteCitations replaces [[sourceID]] markers in an answer with numbered
// [n] references and returns the source IDs in reference order. The same
// source cited twice keeps its first number. Malformed markers pass through
// untouched.
func RewriteCitations(answer string) (string, []string) {
	var out strings.Builder
	var order []string
	numbers := map[string]int{}

	rest := answer
	for {
		start := strings.Index(rest, "[[")
		if start == -1 {
			out.WriteString(rest)
			break
		}

		end := strings.Index(rest[start+2:], "]]")
		if end == -1 {
			out.WriteString(rest)
			break
		}

		citationID := rest[start+2 : start+2+end]
		if !isCitationID(citationID) {
			out.WriteString(rest[:start+1])
			rest = rest[start+1:]
			continue
		}

		out.WriteString(rest[:start])
		n, seen := numbers[citationID]
		if !seen {
			n = len(order) + 1
			numbers[citationID] = n
			order = append(order, citationID)
		}
		fmt.Fprintf(&out, "[%d]", n)
		rest = rest[start+2+end+2:]
	}

	return out.String(), order
}

func isCitationID(id string) bool {
	if id == "" {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}

	return true
}
