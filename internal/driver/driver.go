// Package driver binds browser sessions to the calling worker. A binding lives
// in a context.Context; one shared Driver forwards every call to the session
// bound to the context it is given, so workers never see each other's sessions.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotInitialized is returned when the context carries no binding.
	ErrNotInitialized = errors.New("driver: no session bound to context")
	// ErrSessionClosed is returned once the binding was released or quit.
	ErrSessionClosed = errors.New("driver: session already released")
	// ErrUnsupported is matched by every *CapabilityError.
	ErrUnsupported = errors.New("driver: operation not supported by session")
)

// CapabilityError reports a session lacking an optional capability.
type CapabilityError struct {
	Op         string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("driver: %s requires a session implementing %s", e.Op, e.Capability)
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrUnsupported
}

// Target describes how to build a session for one test.
type Target interface {
	IsRemote() bool
	Browser() webdriver.Browser
	SetCapability(name string, value any)
	Capabilities() webdriver.Capabilities
	Build(ctx context.Context) (webdriver.Session, error)
}

// TargetFactory creates the target for a test identity.
type TargetFactory func(test string) (Target, error)

// Reporter maps sessions to grid jobs.
type Reporter interface {
	JobID(s webdriver.Session) (string, error)
	JobURL(s webdriver.Session) (string, error)
}

// ResultReporter is implemented by reporters that can mark a job passed or failed.
type ResultReporter interface {
	ReportResult(ctx context.Context, jobID string, passed bool) error
}

type Option func(*Driver)

// WithLogger replaces the standard logrus logger.
func WithLogger(l log.FieldLogger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// Driver is safe to share between goroutines. It holds no session itself.
type Driver struct {
	factory  TargetFactory
	reporter Reporter
	log      log.FieldLogger
}

func New(factory TargetFactory, reporter Reporter, opts ...Option) *Driver {
	d := &Driver{
		factory:  factory,
		reporter: reporter,
		log:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type bindingKey struct{}

type binding struct {
	mu       sync.Mutex
	session  webdriver.Session
	test     string
	target   Target
	jobID    string
	released bool
}

func (b *binding) clear() {
	b.session = nil
	b.test = ""
	b.target = nil
	b.jobID = ""
	b.released = true
}

func bindingFrom(ctx context.Context) (*binding, error) {
	b, ok := ctx.Value(bindingKey{}).(*binding)
	if !ok || b == nil {
		return nil, ErrNotInitialized
	}
	return b, nil
}

func sessionFrom(ctx context.Context) (webdriver.Session, error) {
	b, err := bindingFrom(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrSessionClosed
	}
	return b.session, nil
}

// Open builds a session for test and returns a child context bound to it.
// A non-empty description replaces the display name; otherwise the target's
// default, the test identity, is kept. On error the parent context is returned.
func (d *Driver) Open(ctx context.Context, test, description string) (context.Context, error) {
	if d.factory == nil {
		return ctx, errors.New("driver: no target factory configured")
	}
	t, err := d.factory(test)
	if err != nil {
		return ctx, fmt.Errorf("failed to create target for %s: %w", test, err)
	}
	if t == nil {
		return ctx, fmt.Errorf("driver: factory returned no target for %s", test)
	}
	if description != "" {
		t.SetCapability(webdriver.CapabilityName, description)
	}

	s, err := t.Build(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to start %s session for %s: %w", t.Browser(), test, err)
	}
	if s == nil {
		return ctx, fmt.Errorf("driver: %s target returned no session for %s", t.Browser(), test)
	}

	b := &binding{session: s, test: test, target: t}
	if d.reporter != nil {
		jobID, errJobID := d.reporter.JobID(s)
		if errJobID != nil {
			d.log.Debugf("failed to resolve job id for %s: %v", test, errJobID)
			jobID = ""
		}
		b.jobID = jobID
	}

	if t.IsRemote() {
		jobURL := ""
		if d.reporter != nil {
			if jobURL, err = d.reporter.JobURL(s); err != nil {
				d.log.Debugf("failed to resolve job url for %s: %v", test, err)
				jobURL = ""
			}
		}
		d.log.Infof("Remote job url: %s", jobURL)
	}

	return context.WithValue(ctx, bindingKey{}, b), nil
}

// Release quits the bound session if it is still open and clears the binding.
// Releasing twice is a no-op.
func (d *Driver) Release(ctx context.Context) error {
	b, err := bindingFrom(ctx)
	if err != nil {
		return err
	}
	return d.release(b)
}

func (d *Driver) release(b *binding) error {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil
	}
	s := b.session
	b.clear()
	b.mu.Unlock()

	if err := s.Quit(); err != nil {
		return fmt.Errorf("failed to quit session: %w", err)
	}
	return nil
}

// Run opens a binding, calls fn with it and always releases it, even when fn
// panics. Remote jobs are marked passed when fn returns nil.
func (d *Driver) Run(ctx context.Context, test, description string, fn func(ctx context.Context) error) (err error) {
	bctx, err := d.Open(ctx, test, description)
	if err != nil {
		return err
	}
	b, _ := bindingFrom(bctx)
	remote, jobID := b.target.IsRemote(), b.jobID

	passed := false
	defer func() {
		p := recover()
		errRelease := d.release(b)
		if errRelease != nil {
			d.log.Warnf("failed to release session for %s: %v", test, errRelease)
			if err == nil && p == nil {
				err = errRelease
			}
		}
		if remote && jobID != "" {
			d.report(ctx, test, jobID, passed && p == nil)
		}
		if p != nil {
			panic(p)
		}
	}()

	err = fn(bctx)
	passed = err == nil
	return err
}

func (d *Driver) report(ctx context.Context, test, jobID string, passed bool) {
	rr, ok := d.reporter.(ResultReporter)
	if !ok {
		return
	}
	if err := rr.ReportResult(context.WithoutCancel(ctx), jobID, passed); err != nil {
		d.log.Warnf("failed to report result of %s to job %s: %v", test, jobID, err)
		return
	}
	d.log.Debugf("Reported %s as passed=%t to job %s", test, passed, jobID)
}

func (d *Driver) Get(ctx context.Context, url string) error {
	s, err := sessionFrom(ctx)
	if err != nil {
		return err
	}
	return s.Get(url)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return "", err
	}
	return s.CurrentURL()
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return "", err
	}
	return s.Title()
}

func (d *Driver) FindElement(ctx context.Context, by webdriver.By) (webdriver.Element, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindElement(by)
}

func (d *Driver) FindElements(ctx context.Context, by webdriver.By) ([]webdriver.Element, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindElements(by)
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return "", err
	}
	return s.PageSource()
}

// Close closes the current window. The binding stays in place.
func (d *Driver) Close(ctx context.Context) error {
	s, err := sessionFrom(ctx)
	if err != nil {
		return err
	}
	return s.Close()
}

// Quit ends the session and clears the binding, even when the backend fails.
func (d *Driver) Quit(ctx context.Context) error {
	b, err := bindingFrom(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return ErrSessionClosed
	}
	s := b.session
	b.clear()
	b.mu.Unlock()
	return s.Quit()
}

func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.WindowHandles()
}

func (d *Driver) WindowHandle(ctx context.Context) (string, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return "", err
	}
	return s.WindowHandle()
}

func (d *Driver) SwitchTo(ctx context.Context) (webdriver.TargetLocator, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.SwitchTo(), nil
}

func (d *Driver) Navigate(ctx context.Context) (webdriver.Navigation, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.Navigate(), nil
}

func (d *Driver) Manage(ctx context.Context) (webdriver.Options, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.Manage(), nil
}

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	se, ok := s.(webdriver.ScriptExecutor)
	if !ok {
		return nil, &CapabilityError{Op: "ExecuteScript", Capability: "ScriptExecutor"}
	}
	return se.ExecuteScript(script, args...)
}

func (d *Driver) ExecuteAsyncScript(ctx context.Context, script string, args ...any) (any, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	se, ok := s.(webdriver.ScriptExecutor)
	if !ok {
		return nil, &CapabilityError{Op: "ExecuteAsyncScript", Capability: "ScriptExecutor"}
	}
	return se.ExecuteAsyncScript(script, args...)
}

func (d *Driver) Keyboard(ctx context.Context) (webdriver.Keyboard, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	in, ok := s.(webdriver.InputDevices)
	if !ok {
		return nil, &CapabilityError{Op: "Keyboard", Capability: "InputDevices"}
	}
	return in.Keyboard(), nil
}

func (d *Driver) Mouse(ctx context.Context) (webdriver.Mouse, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	in, ok := s.(webdriver.InputDevices)
	if !ok {
		return nil, &CapabilityError{Op: "Mouse", Capability: "InputDevices"}
	}
	return in.Mouse(), nil
}

func (d *Driver) IsRemote(ctx context.Context) (bool, error) {
	t, err := targetFrom(ctx)
	if err != nil {
		return false, err
	}
	return t.IsRemote(), nil
}

func (d *Driver) Browser(ctx context.Context) (webdriver.Browser, error) {
	t, err := targetFrom(ctx)
	if err != nil {
		return "", err
	}
	return t.Browser(), nil
}

// Capabilities returns the desired capabilities the session was built from.
func (d *Driver) Capabilities(ctx context.Context) (webdriver.Capabilities, error) {
	t, err := targetFrom(ctx)
	if err != nil {
		return nil, err
	}
	return t.Capabilities(), nil
}

func targetFrom(ctx context.Context) (Target, error) {
	b, err := bindingFrom(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrSessionClosed
	}
	return b.target, nil
}

// SessionID returns the wire-protocol session id, or "" for local sessions.
func (d *Driver) SessionID(ctx context.Context) (string, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return "", err
	}
	if rs, ok := s.(webdriver.RemoteSession); ok {
		return rs.SessionID(), nil
	}
	return "", nil
}

// JobID returns the grid job id captured when the session was opened.
func (d *Driver) JobID(ctx context.Context) (string, error) {
	b, err := bindingFrom(ctx)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return "", ErrSessionClosed
	}
	return b.jobID, nil
}

func (d *Driver) JobURL(ctx context.Context) (string, error) {
	s, err := sessionFrom(ctx)
	if err != nil {
		return "", err
	}
	if d.reporter == nil {
		return "", nil
	}
	return d.reporter.JobURL(s)
}

// Test returns the test identity the binding was opened for.
func (d *Driver) Test(ctx context.Context) (string, error) {
	b, err := bindingFrom(ctx)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return "", ErrSessionClosed
	}
	return b.test, nil
}

// As reports whether the bound session implements T and returns it as T.
func As[T any](ctx context.Context) (T, bool) {
	var zero T
	s, err := sessionFrom(ctx)
	if err != nil {
		return zero, false
	}
	v, ok := s.(T)
	return v, ok
}
