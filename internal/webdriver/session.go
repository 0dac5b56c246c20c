// Package webdriver defines the backend-neutral session model shared by the
// chromedp, playwright and selenium backends.
package webdriver

import (
	"time"
)

// Session is a live browser-automation session.
type Session interface {
	Get(url string) error
	CurrentURL() (string, error)
	Title() (string, error)
	FindElement(by By) (Element, error)
	FindElements(by By) ([]Element, error)
	PageSource() (string, error)
	// Close closes the current window. Closing the last window ends the session.
	Close() error
	// Quit ends the session and releases the browser.
	Quit() error
	WindowHandles() ([]string, error)
	WindowHandle() (string, error)
	SwitchTo() TargetLocator
	Navigate() Navigation
	Manage() Options
}

// Element is a single element found on the current page.
type Element interface {
	Click() error
	SendKeys(keys string) error
	Clear() error
	Text() (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(name string) (string, error)
	TagName() (string, error)
	IsDisplayed() (bool, error)
}

// Navigation moves through the session history.
type Navigation interface {
	To(url string) error
	Back() error
	Forward() error
	Refresh() error
}

// TargetLocator switches the window or frame subsequent operations act on.
type TargetLocator interface {
	Window(handle string) error
	// Frame switches into the frame or iframe with the given name or id.
	Frame(nameOrID string) error
	DefaultContent() error
	ActiveElement() (Element, error)
}

// Options exposes cookie and timeout management.
type Options interface {
	Cookies() ([]Cookie, error)
	Cookie(name string) (Cookie, error)
	AddCookie(cookie Cookie) error
	DeleteCookie(name string) error
	DeleteAllCookies() error
	Timeouts() Timeouts
}

// Timeouts configures the waiting behaviour of a session.
type Timeouts interface {
	ImplicitlyWait(d time.Duration) error
	PageLoadTimeout(d time.Duration) error
	SetScriptTimeout(d time.Duration) error
}

type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	// Expiry is zero for session cookies.
	Expiry time.Time
}

// ScriptExecutor is implemented by sessions able to run JavaScript.
// Scripts are function bodies: arguments are available as `arguments` and
// the value of a `return` statement is the result.
type ScriptExecutor interface {
	ExecuteScript(script string, args ...any) (any, error)
	// ExecuteAsyncScript passes a completion callback as the last argument
	// and waits until the script calls it.
	ExecuteAsyncScript(script string, args ...any) (any, error)
}

// InputDevices is implemented by sessions exposing raw keyboard and mouse input.
type InputDevices interface {
	Keyboard() Keyboard
	Mouse() Mouse
}

type Keyboard interface {
	SendKeys(keys string) error
	PressKey(key string) error
	ReleaseKey(key string) error
}

// Mouse coordinates are viewport pixels.
type Mouse interface {
	Click(x, y float64) error
	DoubleClick(x, y float64) error
	MoveTo(x, y float64) error
}

// RemoteSession is implemented by sessions driven over the WebDriver wire
// protocol against a grid.
type RemoteSession interface {
	SessionID() string
}
