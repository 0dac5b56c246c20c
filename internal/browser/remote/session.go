// Package remote drives sessions on a WebDriver grid over the wire protocol.
package remote

import (
	"fmt"
	"time"

	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
)

var (
	_ webdriver.Session        = (*Session)(nil)
	_ webdriver.ScriptExecutor = (*Session)(nil)
	_ webdriver.InputDevices   = (*Session)(nil)
	_ webdriver.Element        = (*Element)(nil)
	_ webdriver.RemoteSession  = (*Session)(nil)
)

// Session is a grid-backed session.
type Session struct {
	wd selenium.WebDriver
}

// NewSession creates a session on the grid at gridURL.
func NewSession(caps webdriver.Capabilities, gridURL string) (*Session, error) {
	wd, err := selenium.NewRemote(selenium.Capabilities(caps), gridURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote session: %w", err)
	}
	log.Debugf("Remote session %s created.", wd.SessionID())
	return Wrap(wd), nil
}

// Wrap adapts an existing selenium client.
func Wrap(wd selenium.WebDriver) *Session {
	return &Session{wd: wd}
}

// WebDriver exposes the selenium client for operations the session model does not cover.
func (s *Session) WebDriver() selenium.WebDriver {
	return s.wd
}

func (s *Session) SessionID() string {
	return s.wd.SessionID()
}

func (s *Session) Get(url string) error             { return s.wd.Get(url) }
func (s *Session) CurrentURL() (string, error)      { return s.wd.CurrentURL() }
func (s *Session) Title() (string, error)           { return s.wd.Title() }
func (s *Session) PageSource() (string, error)      { return s.wd.PageSource() }
func (s *Session) Close() error                     { return s.wd.Close() }
func (s *Session) Quit() error                      { return s.wd.Quit() }
func (s *Session) WindowHandles() ([]string, error) { return s.wd.WindowHandles() }
func (s *Session) WindowHandle() (string, error)    { return s.wd.CurrentWindowHandle() }

func (s *Session) FindElement(by webdriver.By) (webdriver.Element, error) {
	we, err := s.wd.FindElement(by.Using, by.Value)
	if err != nil {
		return nil, err
	}
	return &Element{we: we}, nil
}

func (s *Session) FindElements(by webdriver.By) ([]webdriver.Element, error) {
	found, err := s.wd.FindElements(by.Using, by.Value)
	if err != nil {
		return nil, err
	}
	elements := make([]webdriver.Element, 0, len(found))
	for _, we := range found {
		elements = append(elements, &Element{we: we})
	}
	return elements, nil
}

func (s *Session) SwitchTo() webdriver.TargetLocator { return locator{s.wd} }
func (s *Session) Navigate() webdriver.Navigation    { return navigation{s.wd} }
func (s *Session) Manage() webdriver.Options         { return options{s.wd} }

func (s *Session) ExecuteScript(script string, args ...any) (any, error) {
	return s.wd.ExecuteScript(script, unwrapArgs(args))
}

func (s *Session) ExecuteAsyncScript(script string, args ...any) (any, error) {
	return s.wd.ExecuteScriptAsync(script, unwrapArgs(args))
}

// unwrapArgs hands selenium its own element type so it is serialized as an element reference.
func unwrapArgs(args []any) []interface{} {
	out := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if e, ok := arg.(*Element); ok {
			out = append(out, e.we)
			continue
		}
		out = append(out, arg)
	}
	return out
}

type locator struct{ wd selenium.WebDriver }

func (l locator) Window(handle string) error  { return l.wd.SwitchWindow(handle) }
func (l locator) Frame(nameOrID string) error { return l.wd.SwitchFrame(nameOrID) }
func (l locator) DefaultContent() error       { return l.wd.SwitchFrame(nil) }

func (l locator) ActiveElement() (webdriver.Element, error) {
	we, err := l.wd.ActiveElement()
	if err != nil {
		return nil, err
	}
	return &Element{we: we}, nil
}

type navigation struct{ wd selenium.WebDriver }

func (n navigation) To(url string) error { return n.wd.Get(url) }
func (n navigation) Back() error         { return n.wd.Back() }
func (n navigation) Forward() error      { return n.wd.Forward() }
func (n navigation) Refresh() error      { return n.wd.Refresh() }

type options struct{ wd selenium.WebDriver }

func (o options) Timeouts() webdriver.Timeouts { return timeouts(o) }

func (o options) Cookies() ([]webdriver.Cookie, error) {
	cookies, err := o.wd.GetCookies()
	if err != nil {
		return nil, err
	}
	out := make([]webdriver.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, fromSeleniumCookie(c))
	}
	return out, nil
}

func (o options) Cookie(name string) (webdriver.Cookie, error) {
	c, err := o.wd.GetCookie(name)
	if err != nil {
		return webdriver.Cookie{}, err
	}
	return fromSeleniumCookie(c), nil
}

func (o options) AddCookie(cookie webdriver.Cookie) error {
	return o.wd.AddCookie(toSeleniumCookie(cookie))
}

func (o options) DeleteCookie(name string) error { return o.wd.DeleteCookie(name) }
func (o options) DeleteAllCookies() error        { return o.wd.DeleteAllCookies() }

func fromSeleniumCookie(c selenium.Cookie) webdriver.Cookie {
	out := webdriver.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Path:   c.Path,
		Domain: c.Domain,
		Secure: c.Secure,
	}
	if c.Expiry > 0 {
		out.Expiry = time.Unix(int64(c.Expiry), 0)
	}
	return out
}

func toSeleniumCookie(c webdriver.Cookie) *selenium.Cookie {
	out := &selenium.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Path:   c.Path,
		Domain: c.Domain,
		Secure: c.Secure,
	}
	if !c.Expiry.IsZero() {
		out.Expiry = uint(c.Expiry.Unix())
	}
	return out
}

type timeouts struct{ wd selenium.WebDriver }

func (t timeouts) ImplicitlyWait(d time.Duration) error  { return t.wd.SetImplicitWaitTimeout(d) }
func (t timeouts) PageLoadTimeout(d time.Duration) error { return t.wd.SetPageLoadTimeout(d) }
func (t timeouts) SetScriptTimeout(d time.Duration) error {
	return t.wd.SetAsyncScriptTimeout(d)
}
