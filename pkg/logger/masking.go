package logger

import (
	"encoding/json"
	"strings"
)

type MaskingType string

const (
	MaskingTypeFull    MaskingType = "full"
	MaskingTypePartial MaskingType = "partial"
	MaskingTypeEmail   MaskingType = "email"
	MaskingTypeCard    MaskingType = "card"
)

// MaskingRule targets a field by dot path, e.g. "credential.privateKeyPem".
// A "*" segment matches every key of an object. Arrays are transparent: a
// named segment applies to each element.
type MaskingRule struct {
	Field string
	Type  MaskingType
}

// MaskData returns a masked copy of data. The value is round-tripped through
// JSON so rules apply to the serialized shape, the one that gets logged.
// Values that cannot be marshaled are returned unchanged.
func MaskData(data any, rules []MaskingRule) any {
	if len(rules) == 0 {
		return data
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return data
	}

	for _, rule := range rules {
		if rule.Field != "" {
			maskPath(tree, strings.Split(rule.Field, "."), rule.Type)
		}
	}
	return tree
}

func maskPath(node any, path []string, mt MaskingType) {
	if len(path) == 0 {
		return
	}
	head, rest := path[0], path[1:]

	switch n := node.(type) {
	case map[string]any:
		if head == "*" {
			for k := range n {
				maskChild(n, k, rest, mt)
			}
			return
		}
		if _, ok := n[head]; ok {
			maskChild(n, head, rest, mt)
		}

	case []any:
		for i, elem := range n {
			switch {
			case head == "*" && len(rest) == 0:
				n[i] = maskValue(elem, mt)
			case head == "*":
				maskPath(elem, rest, mt)
			default:
				// Arrays are transparent; the segment applies per element.
				maskPath(elem, path, mt)
			}
		}
	}
}

func maskChild(parent map[string]any, key string, rest []string, mt MaskingType) {
	if len(rest) == 0 {
		parent[key] = maskValue(parent[key], mt)
		return
	}
	maskPath(parent[key], rest, mt)
}

func maskValue(value any, mt MaskingType) any {
	s, ok := value.(string)
	if !ok {
		// Non-string secrets are hidden whole, never partially shown.
		return "***"
	}
	if s == "" {
		return value
	}

	switch mt {
	case MaskingTypePartial:
		return maskPartial(s)
	case MaskingTypeEmail:
		return maskEmail(s)
	case MaskingTypeCard:
		return maskCard(s)
	default:
		return "***"
	}
}

// maskPartial keeps at most the first and last character. Short values mask
// to a fixed width so the mask does not give away the length.
func maskPartial(s string) string {
	switch {
	case len(s) <= 3:
		return "***"
	case len(s) <= 6:
		return s[:1] + "***"
	default:
		return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
	}
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	user, domain := email[:at], email[at+1:]
	if len(user) == 1 {
		return "*@" + domain
	}
	width := len(user) - 1
	if width < 3 {
		width = 3
	}
	return user[:1] + strings.Repeat("*", width) + "@" + domain
}

func maskCard(card string) string {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(card)
	if len(digits) < 4 {
		return "****"
	}
	return "****-****-****-" + digits[len(digits)-4:]
}
