// internal/browser/selector.go
package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// Locator is a selector resolved to a concrete query language.
type Locator struct {
	Query string
	XPath bool
}

var hasTextRegex = regexp.MustCompile(`^([a-zA-Z][\w-]*|\*)?:has-text\((["'])(.*)["']\)$`)

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

// ParseSelector resolves a selector string into a Locator. Plain strings are
// CSS. The forms "xpath=...", "//..." and "(//...)" are XPath. "text=..." and
// `tag:has-text("...")` match elements by case-insensitive text content and
// are compiled to XPath.
func ParseSelector(sel string) (Locator, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return Locator{}, fmt.Errorf("empty selector")
	}

	switch {
	case strings.HasPrefix(sel, "xpath="):
		return firstMatch(strings.TrimPrefix(sel, "xpath=")), nil
	case strings.HasPrefix(sel, "//"), strings.HasPrefix(sel, "(//"):
		return firstMatch(sel), nil
	case strings.HasPrefix(sel, "text="):
		text := strings.Trim(strings.TrimPrefix(sel, "text="), `"'`)
		if text == "" {
			return Locator{}, fmt.Errorf("empty text selector")
		}
		return firstMatch(innermostWithText(text)), nil
	}

	if m := hasTextRegex.FindStringSubmatch(sel); m != nil {
		tag := m[1]
		if tag == "" {
			tag = "*"
		}
		return firstMatch(fmt.Sprintf("//%s[contains(%s, %s)]", tag, lowerText(), xpathLiteral(strings.ToLower(m[3])))), nil
	}
	return Locator{Query: sel}, nil
}

func firstMatch(expr string) Locator {
	return Locator{Query: "(" + expr + ")[1]", XPath: true}
}

func lowerText() string {
	return fmt.Sprintf("translate(normalize-space(string(.)), '%s', '%s')", upperAlpha, lowerAlpha)
}

// innermostWithText matches the deepest element whose text contains text.
func innermostWithText(text string) string {
	lit := xpathLiteral(strings.ToLower(text))
	return fmt.Sprintf("//body//*[not(self::script or self::style)][contains(%[1]s, %[2]s)][not(.//*[contains(%[1]s, %[2]s)])]", lowerText(), lit)
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
