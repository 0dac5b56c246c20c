package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/luispater/webtest/internal/driver"
	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
)

const pollInterval = 100 * time.Millisecond

// Method holds the actions a workflow step can name. Every action runs
// against the session bound to ctx.
type Method struct {
	ctx context.Context
	d   *driver.Driver
}

func NewMethod(ctx context.Context, d *driver.Driver) *Method {
	return &Method{ctx: ctx, d: d}
}

// by maps "xpath=", "id=", "name=" and "link=" prefixes to their strategies.
// Anything else is a CSS selector.
func by(selector string) webdriver.By {
	prefix, value, found := strings.Cut(selector, "=")
	if found {
		switch prefix {
		case "xpath":
			return webdriver.ByXPath(value)
		case "id":
			return webdriver.ByID(value)
		case "name":
			return webdriver.ByName(value)
		case "link":
			return webdriver.ByLinkText(value)
		}
	}
	return webdriver.ByCSSSelector(selector)
}

func (m *Method) element(selector string) (webdriver.Element, error) {
	return m.d.FindElement(m.ctx, by(selector))
}

func (m *Method) Goto(url string) error {
	log.Debugf("Navigating to: %s", url)
	return m.d.Get(m.ctx, url)
}

func (m *Method) Back() error {
	nav, err := m.d.Navigate(m.ctx)
	if err != nil {
		return err
	}
	return nav.Back()
}

func (m *Method) Refresh() error {
	nav, err := m.d.Navigate(m.ctx)
	if err != nil {
		return err
	}
	return nav.Refresh()
}

func (m *Method) Title() (string, error) {
	return m.d.Title(m.ctx)
}

func (m *Method) URL() (string, error) {
	return m.d.CurrentURL(m.ctx)
}

func (m *Method) Click(selector string) error {
	element, err := m.element(selector)
	if err != nil {
		return err
	}
	if err = element.Click(); err != nil {
		return fmt.Errorf("error clicking element '%s': %w", selector, err)
	}
	log.Debugf("Successfully clicked element '%s'.", selector)
	return nil
}

// Input replaces the element's value with text.
func (m *Method) Input(selector, text string) error {
	element, err := m.element(selector)
	if err != nil {
		return err
	}
	visible, err := element.IsDisplayed()
	if err != nil {
		return fmt.Errorf("error checking visibility of element '%s': %w", selector, err)
	}
	if !visible {
		return fmt.Errorf("element '%s' found but is not visible", selector)
	}
	if err = element.Clear(); err != nil {
		return fmt.Errorf("error clearing element '%s': %w", selector, err)
	}
	if err = element.SendKeys(text); err != nil {
		return fmt.Errorf("error input element '%s': %w", selector, err)
	}
	log.Debugf("Successfully input element '%s'.", selector)
	return nil
}

func (m *Method) Text(selector string) (string, error) {
	element, err := m.element(selector)
	if err != nil {
		return "", err
	}
	return element.Text()
}

func (m *Method) Attribute(selector, name string) (string, error) {
	element, err := m.element(selector)
	if err != nil {
		return "", err
	}
	return element.Attribute(name)
}

// WaitElement polls until selector matches or timeout milliseconds pass.
func (m *Method) WaitElement(selector string, timeout float64) error {
	deadline := time.Now().Add(time.Duration(timeout * float64(time.Millisecond)))
	for {
		elements, err := m.d.FindElements(m.ctx, by(selector))
		if err != nil {
			return err
		}
		if len(elements) > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %.0fms", webdriver.ErrNoSuchElement, selector, timeout)
		}
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *Method) ExpectTitle(substr string) error {
	title, err := m.d.Title(m.ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(title, substr) {
		return fmt.Errorf("title %q does not contain %q", title, substr)
	}
	return nil
}

func (m *Method) ExpectURL(substr string) error {
	u, err := m.d.CurrentURL(m.ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(u, substr) {
		return fmt.Errorf("url %q does not contain %q", u, substr)
	}
	return nil
}

func (m *Method) ExpectText(selector, substr string) error {
	text, err := m.Text(selector)
	if err != nil {
		return err
	}
	if !strings.Contains(text, substr) {
		return fmt.Errorf("text of '%s' is %q, want it to contain %q", selector, text, substr)
	}
	return nil
}

func (m *Method) Script(script string) (any, error) {
	return m.d.ExecuteScript(m.ctx, script)
}

func (m *Method) Press(keys string) error {
	keyboard, err := m.d.Keyboard(m.ctx)
	if err != nil {
		return err
	}
	return keyboard.SendKeys(keys)
}

func (m *Method) MouseClick(x, y float64) error {
	mouse, err := m.d.Mouse(m.ctx)
	if err != nil {
		return err
	}
	return mouse.Click(x, y)
}

func (m *Method) Frame(nameOrID string) error {
	locator, err := m.d.SwitchTo(m.ctx)
	if err != nil {
		return err
	}
	return locator.Frame(nameOrID)
}

func (m *Method) DefaultContent() error {
	locator, err := m.d.SwitchTo(m.ctx)
	if err != nil {
		return err
	}
	return locator.DefaultContent()
}

func (m *Method) SetCookie(name, value string) error {
	options, err := m.d.Manage(m.ctx)
	if err != nil {
		return err
	}
	return options.AddCookie(webdriver.Cookie{Name: name, Value: value, Path: "/"})
}

func (m *Method) DeleteCookies() error {
	options, err := m.d.Manage(m.ctx)
	if err != nil {
		return err
	}
	return options.DeleteAllCookies()
}

// Sleep pauses for ms milliseconds.
func (m *Method) Sleep(ms int) error {
	select {
	case <-m.ctx.Done():
		return m.ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	}
}
