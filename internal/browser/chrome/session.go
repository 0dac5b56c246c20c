package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
)

var (
	_ webdriver.Session        = (*Session)(nil)
	_ webdriver.ScriptExecutor = (*Session)(nil)
	_ webdriver.InputDevices   = (*Session)(nil)
	_ webdriver.Element        = (*Element)(nil)
)

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session drives one Chrome process through chromedp. Each window is a
// chromedp tab context; the active frame, when set, scopes element queries.
type Session struct {
	m *Manager

	mu           sync.Mutex
	tabs         map[target.ID]*tab
	current      *tab
	frame        *cdp.Node
	implicitWait time.Duration
	pageLoad     time.Duration
	script       time.Duration
	quit         bool
}

func newSession(m *Manager) *Session {
	first := &tab{ctx: m.browserCtx}
	s := &Session{
		m:       m,
		tabs:    make(map[target.ID]*tab),
		current: first,
	}
	if c := chromedp.FromContext(m.browserCtx); c != nil && c.Target != nil {
		s.tabs[c.Target.TargetID] = first
	}
	return s
}

var errQuit = fmt.Errorf("%w: session has quit", webdriver.ErrNoSuchWindow)

// state returns the current tab and frame, or errQuit once the browser is gone.
func (s *Session) state() (*tab, *cdp.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit || s.current == nil {
		return nil, nil, errQuit
	}
	return s.current, s.frame, nil
}

func (s *Session) browser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit || s.m.browserCtx == nil {
		return nil, errQuit
	}
	return s.m.browserCtx, nil
}

func (s *Session) run(timeout time.Duration, actions ...chromedp.Action) error {
	t, _, err := s.state()
	if err != nil {
		return err
	}
	return runIn(t.ctx, timeout, actions...)
}

func runIn(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return chromedp.Run(ctx, actions...)
}

func (s *Session) Get(url string) error {
	s.mu.Lock()
	timeout := s.pageLoad
	s.frame = nil
	s.mu.Unlock()
	return s.run(timeout, chromedp.Navigate(url))
}

func (s *Session) CurrentURL() (string, error) {
	var currentURL string
	if err := s.run(0, chromedp.Location(&currentURL)); err != nil {
		return "", err
	}
	return currentURL, nil
}

func (s *Session) Title() (string, error) {
	var title string
	if err := s.run(0, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (s *Session) PageSource() (string, error) {
	var source string
	if err := s.run(0, chromedp.OuterHTML("html", &source, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return source, nil
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

	t, frame, err := s.state()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	wait := s.implicitWait
	s.mu.Unlock()

	opts := []chromedp.QueryOption{chromedp.ByQueryAll}
	if kind == webdriver.SelectorXPath {
		if frame != nil {
			return nil, fmt.Errorf("xpath lookups inside frames are not supported: %s", by)
		}
		opts = []chromedp.QueryOption{chromedp.BySearch}
	}
	if frame != nil {
		opts = append(opts, chromedp.FromNode(frame))
	}
	if wait == 0 {
		opts = append(opts, chromedp.AtLeast(0))
	}

	var nodes []*cdp.Node
	err = runIn(t.ctx, wait, chromedp.Nodes(selector, &nodes, opts...))
	if err != nil && !(wait > 0 && errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}

	elements := make([]webdriver.Element, 0, len(nodes))
	for _, node := range nodes {
		elements = append(elements, &Element{ctx: t.ctx, node: node})
	}
	return elements, nil
}

// Close closes the current tab. Closing the last tab quits the browser.
func (s *Session) Close() error {
	t, _, err := s.state()
	if err != nil {
		return err
	}
	if err = chromedp.Run(t.ctx, page.Close()); err != nil {
		return err
	}

	s.mu.Lock()
	for id, candidate := range s.tabs {
		if candidate == t {
			delete(s.tabs, id)
		}
	}
	s.frame = nil
	s.mu.Unlock()

	handles, err := s.WindowHandles()
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		log.Debug("Last tab closed, shutting down browser.")
		return s.Quit()
	}
	return s.SwitchTo().Window(handles[0])
}

func (s *Session) Quit() error {
	s.mu.Lock()
	if s.quit {
		s.mu.Unlock()
		return nil
	}
	s.quit = true
	tabs := s.tabs
	s.tabs = make(map[target.ID]*tab)
	s.current = nil
	s.frame = nil
	s.mu.Unlock()

	for _, t := range tabs {
		if t.cancel != nil {
			t.cancel()
		}
	}
	return s.m.Close()
}

func (s *Session) WindowHandles() ([]string, error) {
	browserCtx, err := s.browser()
	if err != nil {
		return nil, err
	}
	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			handles = append(handles, string(info.TargetID))
		}
	}
	return handles, nil
}

func (s *Session) WindowHandle() (string, error) {
	t, _, err := s.state()
	if err != nil {
		return "", err
	}
	c := chromedp.FromContext(t.ctx)
	if c == nil || c.Target == nil {
		return "", webdriver.ErrNoSuchWindow
	}
	return string(c.Target.TargetID), nil
}

func (s *Session) SwitchTo() webdriver.TargetLocator { return locator{s} }
func (s *Session) Navigate() webdriver.Navigation    { return navigation{s} }
func (s *Session) Manage() webdriver.Options         { return options{s} }

type locator struct{ s *Session }

func (l locator) Window(handle string) error {
	s := l.s
	id := target.ID(handle)

	s.mu.Lock()
	t, ok := s.tabs[id]
	s.mu.Unlock()

	if !ok {
		handles, err := s.WindowHandles()
		if err != nil {
			return err
		}
		found := false
		for _, h := range handles {
			if h == handle {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", webdriver.ErrNoSuchWindow, handle)
		}

		browserCtx, err := s.browser()
		if err != nil {
			return err
		}
		ctx, cancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(id))
		if err = chromedp.Run(ctx); err != nil {
			cancel()
			return fmt.Errorf("failed to attach to tab %s: %w", handle, err)
		}
		t = &tab{ctx: ctx, cancel: cancel}
		s.mu.Lock()
		if s.quit {
			s.mu.Unlock()
			cancel()
			return errQuit
		}
		s.tabs[id] = t
		s.mu.Unlock()
	}

	if err := chromedp.Run(t.ctx, page.BringToFront()); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = t
	s.frame = nil
	s.mu.Unlock()
	return nil
}

func (l locator) Frame(nameOrID string) error {
	s := l.s
	_, byName, _ := webdriver.ByName(nameOrID).Selector()
	_, byID, _ := webdriver.ByID(nameOrID).Selector()
	selector := fmt.Sprintf("iframe%[1]s, iframe%[2]s, frame%[1]s, frame%[2]s", byName, byID)

	t, frame, err := s.state()
	if err != nil {
		return err
	}
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if frame != nil {
		opts = append(opts, chromedp.FromNode(frame))
	}
	var nodes []*cdp.Node
	if err := runIn(t.ctx, 0, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", webdriver.ErrNoSuchFrame, nameOrID)
	}

	s.mu.Lock()
	s.frame = nodes[0]
	s.mu.Unlock()
	return nil
}

func (l locator) DefaultContent() error {
	l.s.mu.Lock()
	l.s.frame = nil
	l.s.mu.Unlock()
	return nil
}

func (l locator) ActiveElement() (webdriver.Element, error) {
	t, frame, err := l.s.state()
	if err != nil {
		return nil, err
	}
	for _, selector := range []string{"*:focus", "body"} {
		opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
		if frame != nil {
			opts = append(opts, chromedp.FromNode(frame))
		}
		var nodes []*cdp.Node
		if err := runIn(t.ctx, 0, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
			return nil, err
		}
		if len(nodes) > 0 {
			return &Element{ctx: t.ctx, node: nodes[0]}, nil
		}
	}
	return nil, fmt.Errorf("%w: active element", webdriver.ErrNoSuchElement)
}

type navigation struct{ s *Session }

func (n navigation) To(url string) error { return n.s.Get(url) }
func (n navigation) Back() error         { return n.s.run(0, chromedp.NavigateBack()) }
func (n navigation) Forward() error      { return n.s.run(0, chromedp.NavigateForward()) }
func (n navigation) Refresh() error      { return n.s.run(0, chromedp.Reload()) }

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
