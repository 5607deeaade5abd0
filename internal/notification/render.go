package notification

import (
	"fmt"
	"regexp"
	"sort"
)

var tokenPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// RenderTokens substitutes {{name}} tokens with values from variables.
// Tokens with no matching variable stay literal; rendering never fails.
func RenderTokens(body string, variables map[string]any) string {
	if body == "" || len(variables) == 0 {
		return body
	}

	return tokenPattern.ReplaceAllStringFunc(body, func(token string) string {
		name := token[2 : len(token)-2]
		value, ok := variables[name]
		if !ok {
			return token
		}
		return fmt.Sprintf("%v", value)
	})
}

// ExtractTokens derives a template's variable list from its bodies,
// deduplicated and sorted.
func ExtractTokens(bodies ...string) []string {
	seen := make(map[string]struct{})
	for _, body := range bodies {
		for _, match := range tokenPattern.FindAllStringSubmatch(body, -1) {
			seen[match[1]] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(seen))
	for name := range seen {
		tokens = append(tokens, name)
	}
	sort.Strings(tokens)
	return tokens
}
