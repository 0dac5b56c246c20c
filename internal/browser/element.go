package browser

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// Element wraps a locator resolved to exactly one element.
type Element struct {
	locator playwright.Locator
}

func (e *Element) Click() error {
	return e.locator.Click()
}

func (e *Element) SendKeys(keys string) error {
	return e.locator.PressSequentially(keys)
}

func (e *Element) Clear() error {
	return e.locator.Clear()
}

func (e *Element) Text() (string, error) {
	return e.locator.InnerText()
}

func (e *Element) Attribute(name string) (string, error) {
	return e.locator.GetAttribute(name)
}

func (e *Element) TagName() (string, error) {
	v, err := e.locator.Evaluate("el => el.tagName.toLowerCase()", nil)
	if err != nil {
		return "", err
	}
	name, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected tag name %v", v)
	}
	return name, nil
}

func (e *Element) IsDisplayed() (bool, error) {
	return e.locator.IsVisible()
}

// Locator exposes the underlying playwright locator.
func (e *Element) Locator() playwright.Locator {
	return e.locator
}
