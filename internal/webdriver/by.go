package webdriver

import (
	"fmt"
	"strings"
)

// Locator strategies, named as in the W3C WebDriver protocol.
const (
	UsingID              = "id"
	UsingName            = "name"
	UsingCSSSelector     = "css selector"
	UsingXPath           = "xpath"
	UsingTagName         = "tag name"
	UsingClassName       = "class name"
	UsingLinkText        = "link text"
	UsingPartialLinkText = "partial link text"
)

// By is an element locator.
type By struct {
	Using string
	Value string
}

func ByID(id string) By                { return By{UsingID, id} }
func ByName(name string) By            { return By{UsingName, name} }
func ByCSSSelector(css string) By      { return By{UsingCSSSelector, css} }
func ByXPath(xpath string) By          { return By{UsingXPath, xpath} }
func ByTagName(tag string) By          { return By{UsingTagName, tag} }
func ByClassName(class string) By      { return By{UsingClassName, class} }
func ByLinkText(text string) By        { return By{UsingLinkText, text} }
func ByPartialLinkText(text string) By { return By{UsingPartialLinkText, text} }

func (b By) String() string {
	return fmt.Sprintf("By.%s: %s", b.Using, b.Value)
}

// Selector kinds returned by By.Selector.
const (
	SelectorCSS   = "css"
	SelectorXPath = "xpath"
)

// Selector translates the locator into a css or xpath selector for engines
// that only understand those two.
func (b By) Selector() (kind string, selector string, err error) {
	switch b.Using {
	case UsingCSSSelector:
		return SelectorCSS, b.Value, nil
	case UsingXPath:
		return SelectorXPath, b.Value, nil
	case UsingID:
		return SelectorCSS, fmt.Sprintf("[id=%s]", cssString(b.Value)), nil
	case UsingName:
		return SelectorCSS, fmt.Sprintf("[name=%s]", cssString(b.Value)), nil
	case UsingTagName:
		return SelectorCSS, b.Value, nil
	case UsingClassName:
		if strings.ContainsAny(strings.TrimSpace(b.Value), " \t") {
			return "", "", fmt.Errorf("compound class names are not permitted: %q", b.Value)
		}
		return SelectorCSS, fmt.Sprintf("[class~=%s]", cssString(strings.TrimSpace(b.Value))), nil
	case UsingLinkText:
		return SelectorXPath, fmt.Sprintf("//a[normalize-space(.)=%s]", XPathLiteral(strings.TrimSpace(b.Value))), nil
	case UsingPartialLinkText:
		return SelectorXPath, fmt.Sprintf("//a[contains(., %s)]", XPathLiteral(b.Value)), nil
	}
	return "", "", fmt.Errorf("unknown locator strategy %q", b.Using)
}

func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// XPathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds are built with concat().
func XPathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}
