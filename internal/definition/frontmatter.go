package definition

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// splitFrontmatter separates a leading "---" delimited header from the body.
// Content without a complete header is all body.
func splitFrontmatter(content string) (header string, body string, ok bool) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	rest, found := strings.CutPrefix(content, "---\n")
	if !found {
		return "", content, false
	}
	if strings.HasPrefix(rest, "---\n") {
		return "", rest[len("---\n"):], true
	}
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n---") {
			return rest[:len(rest)-len("\n---")], "", true
		}
		return "", content, false
	}
	return rest[:end], rest[end+len("\n---\n"):], true
}

// parseFrontmatter decodes a header block into loosely typed metadata.
// YAML is tried first; headers that are not valid YAML (unquoted colons in
// descriptions are common) fall back to a line-oriented reader that
// understands "key: value", "key: [a, b]" and "- item" lists.
func parseFrontmatter(block string) map[string]any {
	if strings.TrimSpace(block) == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := yaml.Unmarshal([]byte(block), &out); err == nil && out != nil {
		return out
	}
	return parseLines(block)
}

func parseLines(block string) map[string]any {
	lines := strings.Split(block, "\n")
	out := map[string]any{}
	for i := 0; i < len(lines); i++ {
		key, value, ok := splitKey(lines[i])
		if !ok {
			continue
		}

		if value == "" {
			var items []any
			j := i + 1
			for ; j < len(lines); j++ {
				raw := lines[j]
				trimmed := strings.TrimSpace(raw)
				if trimmed == "" {
					continue
				}
				if item, isItem := strings.CutPrefix(trimmed, "- "); isItem {
					items = append(items, unquote(item))
					continue
				}
				if strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t") {
					continue
				}
				break
			}
			if items != nil {
				out[key] = items
				i = j - 1
				continue
			}
		}

		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
			inner := strings.TrimSpace(value[1 : len(value)-1])
			items := []any{}
			if inner != "" {
				for _, part := range strings.Split(inner, ",") {
					if p := unquote(part); p != "" {
						items = append(items, p)
					}
				}
			}
			out[key] = items
			continue
		}
		out[key] = unquote(value)
	}
	return out
}

func splitKey(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	key, value, found := strings.Cut(trimmed, ":")
	if !found || key == "" {
		return "", "", false
	}
	for _, c := range key {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return "", "", false
		}
	}
	return key, strings.TrimSpace(value), true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// toList normalizes a metadata value into a list of names.
//
//	absent key        -> nil (unrestricted)
//	empty value       -> [] (nothing allowed)
//	"a, b"            -> [a b]
//	[a, b] / - a - b  -> [a b]
//
// Entries are trimmed and deduplicated, keeping first-seen order.
func toList(v any, present bool) []string {
	if !present {
		return nil
	}
	var raw []string
	switch t := v.(type) {
	case nil:
		return []string{}
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = t
	default:
		return nil
	}
	out := []string{}
	seen := map[string]bool{}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
