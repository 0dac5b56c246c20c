package chrome

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/chromedp"
)

// Element is a DOM node of the tab it was found in.
type Element struct {
	ctx  context.Context
	node *cdp.Node
}

func (e *Element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *Element) Click() error {
	return chromedp.Run(e.ctx, chromedp.Click(e.ids(), chromedp.ByNodeID))
}

func (e *Element) SendKeys(keys string) error {
	return chromedp.Run(e.ctx, chromedp.SendKeys(e.ids(), keys, chromedp.ByNodeID))
}

func (e *Element) Clear() error {
	return chromedp.Run(e.ctx, chromedp.Clear(e.ids(), chromedp.ByNodeID))
}

func (e *Element) Text() (string, error) {
	var text string
	if err := chromedp.Run(e.ctx, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}

func (e *Element) Attribute(name string) (string, error) {
	var value string
	var ok bool
	if err := chromedp.Run(e.ctx, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

func (e *Element) TagName() (string, error) {
	if e.node.LocalName != "" {
		return e.node.LocalName, nil
	}
	return strings.ToLower(e.node.NodeName), nil
}

func (e *Element) IsDisplayed() (bool, error) {
	var styles []*css.ComputedStyleProperty
	if err := chromedp.Run(e.ctx, chromedp.ComputedStyle(e.ids(), &styles, chromedp.ByNodeID)); err != nil {
		return false, err
	}
	return displayed(styles), nil
}

func displayed(styles []*css.ComputedStyleProperty) bool {
	for _, style := range styles {
		switch style.Name {
		case "display":
			if style.Value == "none" {
				return false
			}
		case "visibility":
			if style.Value == "hidden" || style.Value == "collapse" {
				return false
			}
		}
	}
	return true
}

// Node exposes the underlying DOM node for callers that drop down to chromedp.
func (e *Element) Node() *cdp.Node {
	return e.node
}
