package browser

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luispater/webtest/internal/webdriver"
	"github.com/playwright-community/playwright-go"
)

var (
	_ webdriver.Session        = (*Session)(nil)
	_ webdriver.ScriptExecutor = (*Session)(nil)
	_ webdriver.InputDevices   = (*Session)(nil)
	_ webdriver.Element        = (*Element)(nil)
)

// Session drives playwright pages. Pages carry no stable id of their own, so
// each page gets a uuid window handle the first time it is seen.
type Session struct {
	m *Manager

	mu           sync.Mutex
	page         playwright.Page
	frame        playwright.Frame
	handles      map[playwright.Page]string
	implicitWait time.Duration
	pageLoad     time.Duration
	script       time.Duration
	quit         bool
}

func newSession(m *Manager, page playwright.Page) *Session {
	s := &Session{
		m:       m,
		page:    page,
		handles: make(map[playwright.Page]string),
	}
	s.handles[page] = uuid.NewString()
	return s
}

func (s *Session) state() (playwright.Page, playwright.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.frame
}

func (s *Session) locate(selector string) playwright.Locator {
	page, frame := s.state()
	if frame != nil {
		return frame.Locator(selector)
	}
	return page.Locator(selector)
}

func milliseconds(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (s *Session) Get(url string) error {
	s.mu.Lock()
	page, timeout := s.page, s.pageLoad
	s.frame = nil
	s.mu.Unlock()

	options := playwright.PageGotoOptions{}
	if timeout > 0 {
		options.Timeout = milliseconds(timeout)
	}
	_, err := page.Goto(url, options)
	return err
}

func (s *Session) CurrentURL() (string, error) {
	page, _ := s.state()
	return page.URL(), nil
}

func (s *Session) Title() (string, error) {
	page, _ := s.state()
	return page.Title()
}

func (s *Session) PageSource() (string, error) {
	page, frame := s.state()
	if frame != nil {
		return frame.Content()
	}
	return page.Content()
}

func (s *Session) FindElement(by webdriver.By) (webdriver.Element, error) {
	elements, err := s.FindElements(by)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", webdriver.ErrNoSuchElement, by)
	}
	return elements[0], nil
}

func (s *Session) FindElements(by webdriver.By) ([]webdriver.Element, error) {
	kind, selector, err := by.Selector()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	wait := s.implicitWait
	s.mu.Unlock()

	locator := s.locate(kind + "=" + selector)
	if wait > 0 {
		err = locator.First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: milliseconds(wait),
		})
		if err != nil && !errors.Is(err, playwright.ErrTimeout) {
			return nil, err
		}
	}

	locators, err := locator.All()
	if err != nil {
		return nil, err
	}
	elements := make([]webdriver.Element, 0, len(locators))
	for _, l := range locators {
		elements = append(elements, &Element{locator: l})
	}
	return elements, nil
}

// Close closes the current page. Closing the last page quits the browser.
func (s *Session) Close() error {
	page, _ := s.state()
	if err := page.Close(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.handles, page)
	s.frame = nil
	s.mu.Unlock()

	remaining := s.m.Context.Pages()
	if len(remaining) == 0 {
		return s.Quit()
	}
	s.mu.Lock()
	s.page = remaining[0]
	s.mu.Unlock()
	return nil
}

func (s *Session) Quit() error {
	s.mu.Lock()
	if s.quit {
		s.mu.Unlock()
		return nil
	}
	s.quit = true
	s.mu.Unlock()
	return s.m.Close()
}

func (s *Session) WindowHandles() ([]string, error) {
	pages := s.m.Context.Pages()

	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]string, 0, len(pages))
	for _, p := range pages {
		handles = append(handles, s.handleOf(p))
	}
	return handles, nil
}

func (s *Session) WindowHandle() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handleOf(s.page), nil
}

// handleOf must be called with s.mu held.
func (s *Session) handleOf(p playwright.Page) string {
	if h, ok := s.handles[p]; ok {
		return h
	}
	h := uuid.NewString()
	s.handles[p] = h
	return h
}

func (s *Session) SwitchTo() webdriver.TargetLocator { return locator{s} }
func (s *Session) Navigate() webdriver.Navigation    { return navigation{s} }
func (s *Session) Manage() webdriver.Options         { return options{s} }

type locator struct{ s *Session }

func (l locator) Window(handle string) error {
	s := l.s
	if _, err := s.WindowHandles(); err != nil {
		return err
	}

	s.mu.Lock()
	var target playwright.Page
	for p, h := range s.handles {
		if h == handle && !p.IsClosed() {
			target = p
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("%w: %s", webdriver.ErrNoSuchWindow, handle)
	}

	if err := target.BringToFront(); err != nil {
		return err
	}
	s.mu.Lock()
	s.page = target
	s.frame = nil
	s.mu.Unlock()
	return nil
}

func (l locator) Frame(nameOrID string) error {
	page, frame := l.s.state()
	candidates := page.Frames()
	if frame != nil {
		candidates = frame.ChildFrames()
	}
	for _, f := range candidates {
		if frameMatches(f, nameOrID) {
			l.s.mu.Lock()
			l.s.frame = f
			l.s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", webdriver.ErrNoSuchFrame, nameOrID)
}

// frameMatches reports whether f has the given name or its frame element has
// the given id.
func frameMatches(f playwright.Frame, nameOrID string) bool {
	if f.Name() == nameOrID {
		return true
	}
	el, err := f.FrameElement()
	if err != nil || el == nil {
		return false
	}
	defer func() {
		_ = el.Dispose()
	}()
	id, err := el.GetAttribute("id")
	return err == nil && id == nameOrID
}

func (l locator) DefaultContent() error {
	l.s.mu.Lock()
	l.s.frame = nil
	l.s.mu.Unlock()
	return nil
}

func (l locator) ActiveElement() (webdriver.Element, error) {
	focused := l.s.locate("*:focus")
	count, err := focused.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		focused = l.s.locate("body")
	}
	return &Element{locator: focused.First()}, nil
}

type navigation struct{ s *Session }

func (n navigation) To(url string) error { return n.s.Get(url) }

func (n navigation) Back() error {
	page, _ := n.s.state()
	_, err := page.GoBack()
	return err
}

func (n navigation) Forward() error {
	page, _ := n.s.state()
	_, err := page.GoForward()
	return err
}

func (n navigation) Refresh() error {
	page, _ := n.s.state()
	_, err := page.Reload()
	return err
}

type timeouts struct{ s *Session }

func (t timeouts) ImplicitlyWait(d time.Duration) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.implicitWait = d
	return nil
}

func (t timeouts) PageLoadTimeout(d time.Duration) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.pageLoad = d
	return nil
}

func (t timeouts) SetScriptTimeout(d time.Duration) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.script = d
	return nil
}
