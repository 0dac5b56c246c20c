package remote

import (
	"github.com/luispater/webtest/internal/webdriver"
	"github.com/tebeka/selenium"
)

// Element wraps a grid element reference.
type Element struct {
	we selenium.WebElement
}

func (e *Element) Click() error               { return e.we.Click() }
func (e *Element) SendKeys(keys string) error { return e.we.SendKeys(keys) }
func (e *Element) Clear() error               { return e.we.Clear() }
func (e *Element) Text() (string, error)      { return e.we.Text() }
func (e *Element) TagName() (string, error)   { return e.we.TagName() }
func (e *Element) IsDisplayed() (bool, error) { return e.we.IsDisplayed() }

// Attribute maps the client's "nil return value" error for absent attributes to "".
func (e *Element) Attribute(name string) (string, error) {
	v, err := e.we.GetAttribute(name)
	if err != nil && err.Error() == "nil return value" {
		return "", nil
	}
	return v, err
}

func (s *Session) Keyboard() webdriver.Keyboard { return keyboard{s.wd} }
func (s *Session) Mouse() webdriver.Mouse       { return mouse{s.wd} }

type keyboard struct{ wd selenium.WebDriver }

func (k keyboard) SendKeys(keys string) error {
	active, err := k.wd.ActiveElement()
	if err != nil {
		return err
	}
	return active.SendKeys(keys)
}

func (k keyboard) PressKey(key string) error   { return k.wd.KeyDown(key) }
func (k keyboard) ReleaseKey(key string) error { return k.wd.KeyUp(key) }

// mouse positions the pointer relative to the document body, which the legacy
// wire protocol requires as the move target.
type mouse struct{ wd selenium.WebDriver }

func (m mouse) MoveTo(x, y float64) error {
	body, err := m.wd.FindElement(selenium.ByTagName, "body")
	if err != nil {
		return err
	}
	return body.MoveTo(int(x), int(y))
}

func (m mouse) Click(x, y float64) error {
	if err := m.MoveTo(x, y); err != nil {
		return err
	}
	return m.wd.Click(selenium.LeftButton)
}

func (m mouse) DoubleClick(x, y float64) error {
	if err := m.MoveTo(x, y); err != nil {
		return err
	}
	return m.wd.DoubleClick()
}
