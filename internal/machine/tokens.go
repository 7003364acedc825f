package machine

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// appendToken adds a token to the prompt text: "" becomes "garlic" and
// "garlic" becomes "garlic, salt".
func appendToken(prompt, token string) string {
	prompt = strings.TrimRight(prompt, " ,")
	if prompt == "" {
		return token
	}
	return prompt + ", " + token
}

// removeToken drops a token's segment from the prompt text.
func removeToken(prompt, token string) string {
	switch {
	case prompt == token:
		return ""
	case strings.HasSuffix(prompt, ", "+token):
		return strings.TrimSuffix(prompt, ", "+token)
	case strings.HasPrefix(prompt, token+", "):
		return strings.TrimPrefix(prompt, token+", ")
	}
	return strings.Replace(prompt, ", "+token+",", ",", 1)
}

func normalizeToken(t string) string {
	return strings.ToLower(strings.Join(strings.Fields(t), " "))
}

// nearDuplicate reports whether two normalized tokens differ only by a typo
// or a plural. Short tokens must match exactly.
func nearDuplicate(a, b string) bool {
	if a == b {
		return true
	}
	n := min(len(a), len(b))
	limit := 0
	switch {
	case n >= 9:
		limit = 2
	case n >= 5:
		limit = 1
	}
	if limit == 0 {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= limit
}

// filterTokens removes empty suggestions and those that duplicate a token the
// user already chose or an earlier suggestion.
func filterTokens(suggested, chosen []string) []string {
	seen := make([]string, 0, len(chosen)+len(suggested))
	for _, t := range chosen {
		seen = append(seen, normalizeToken(t))
	}
	out := make([]string, 0, len(suggested))
next:
	for _, t := range suggested {
		n := normalizeToken(t)
		if n == "" {
			continue
		}
		for _, s := range seen {
			if nearDuplicate(n, s) {
				continue next
			}
		}
		seen = append(seen, n)
		out = append(out, strings.TrimSpace(t))
	}
	return out
}
