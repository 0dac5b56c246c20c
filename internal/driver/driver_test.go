package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeSession struct {
	webdriver.Session

	mu     sync.Mutex
	url    string
	title  string
	closes int
	quits  atomic.Int32
	err    error
}

func (s *fakeSession) Get(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.url = url
	return nil
}

func (s *fakeSession) CurrentURL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, s.err
}

func (s *fakeSession) Title() (string, error) { return s.title, s.err }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSession) Quit() error {
	s.quits.Add(1)
	return nil
}

type remoteSession struct {
	*fakeSession
	id string
}

func (s *remoteSession) SessionID() string { return s.id }

type scriptSession struct {
	*fakeSession
}

func (s *scriptSession) ExecuteScript(script string, args ...any) (any, error) {
	return fmt.Sprintf("%s%v", script, args), nil
}

func (s *scriptSession) ExecuteAsyncScript(script string, args ...any) (any, error) {
	return "async:" + script, nil
}

type fakeTarget struct {
	remote   bool
	browser  webdriver.Browser
	caps     webdriver.Capabilities
	session  webdriver.Session
	buildErr error
}

func newFakeTarget(test string, s webdriver.Session) *fakeTarget {
	return &fakeTarget{
		browser: webdriver.Chrome,
		caps:    webdriver.Capabilities{webdriver.CapabilityName: test},
		session: s,
	}
}

func (t *fakeTarget) IsRemote() bool                       { return t.remote }
func (t *fakeTarget) Browser() webdriver.Browser           { return t.browser }
func (t *fakeTarget) SetCapability(name string, value any) { t.caps[name] = value }
func (t *fakeTarget) Capabilities() webdriver.Capabilities { return t.caps.Clone() }

func (t *fakeTarget) Build(context.Context) (webdriver.Session, error) {
	if t.buildErr != nil {
		return nil, t.buildErr
	}
	return t.session, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	results map[string]bool
	idErr   error
}

func (r *fakeReporter) JobID(s webdriver.Session) (string, error) {
	if r.idErr != nil {
		return "", r.idErr
	}
	if rs, ok := s.(webdriver.RemoteSession); ok {
		return rs.SessionID(), nil
	}
	return "", nil
}

func (r *fakeReporter) JobURL(s webdriver.Session) (string, error) {
	id, err := r.JobID(s)
	if err != nil || id == "" {
		return "", err
	}
	return "https://grid.example/jobs/" + id, nil
}

func (r *fakeReporter) ReportResult(_ context.Context, jobID string, passed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string]bool)
	}
	r.results[jobID] = passed
	return nil
}

func factoryFor(t *fakeTarget) TargetFactory {
	return func(string) (Target, error) { return t, nil }
}

func quietDriver(factory TargetFactory, reporter Reporter) (*Driver, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return New(factory, reporter, WithLogger(logger)), hook
}

func TestOperationsWithoutBindingFail(t *testing.T) {
	d, _ := quietDriver(nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, d.Get(ctx, "https://example.com"), ErrNotInitialized)
	_, err := d.Title(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = d.SessionID(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = d.IsRemote(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = d.Keyboard(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, d.Quit(ctx), ErrNotInitialized)
	assert.ErrorIs(t, d.Release(ctx), ErrNotInitialized)

	_, ok := As[webdriver.RemoteSession](ctx)
	assert.False(t, ok)
}

func TestOpenKeepsDefaultDisplayName(t *testing.T) {
	tgt := newFakeTarget("LoginTest", &fakeSession{})
	d, _ := quietDriver(factoryFor(tgt), nil)

	ctx, err := d.Open(context.Background(), "LoginTest", "")
	require.NoError(t, err)

	caps, err := d.Capabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LoginTest", caps.Name())

	name, err := d.Test(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LoginTest", name)
}

func TestOpenAppliesDescriptionVerbatim(t *testing.T) {
	tgt := newFakeTarget("LoginTest", &fakeSession{})
	d, _ := quietDriver(factoryFor(tgt), nil)

	ctx, err := d.Open(context.Background(), "LoginTest", "Login flow #42")
	require.NoError(t, err)

	caps, err := d.Capabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Login flow #42", caps.Name())
}

func TestOpenFailures(t *testing.T) {
	d, _ := quietDriver(func(string) (Target, error) {
		return nil, errors.New("bad config")
	}, nil)
	parent := context.Background()
	ctx, err := d.Open(parent, "T", "")
	assert.ErrorContains(t, err, "bad config")
	assert.Equal(t, parent, ctx)

	tgt := newFakeTarget("T", nil)
	tgt.buildErr = errors.New("grid unreachable")
	d, _ = quietDriver(factoryFor(tgt), nil)
	_, err = d.Open(parent, "T", "")
	assert.ErrorContains(t, err, "grid unreachable")
}

func TestOpenRejectsMissingTargetOrSession(t *testing.T) {
	parent := context.Background()
	d, _ := quietDriver(func(string) (Target, error) { return nil, nil }, nil)
	var ctx context.Context
	var err error
	assert.NotPanics(t, func() { ctx, err = d.Open(parent, "T", "described") })
	assert.ErrorContains(t, err, "no target")
	assert.Equal(t, parent, ctx)

	d, _ = quietDriver(factoryFor(newFakeTarget("T", nil)), nil)
	assert.NotPanics(t, func() { ctx, err = d.Open(parent, "T", "") })
	assert.ErrorContains(t, err, "no session")
	assert.Equal(t, parent, ctx)
	_, err = d.Title(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestForwardingReachesBoundSession(t *testing.T) {
	s := &fakeSession{title: "Example Domain"}
	d, _ := quietDriver(factoryFor(newFakeTarget("T", s)), nil)

	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)

	require.NoError(t, d.Get(ctx, "https://example.com"))
	u, err := d.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", u)

	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", title)
}

func TestSessionErrorsAreNotWrapped(t *testing.T) {
	sentinel := errors.New("stale element")
	s := &fakeSession{err: sentinel}
	d, _ := quietDriver(factoryFor(newFakeTarget("T", s)), nil)

	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)
	assert.Same(t, sentinel, d.Get(ctx, "https://example.com"))
}

func TestRemoteOpenLogsJobURLOnce(t *testing.T) {
	tgt := newFakeTarget("T", &remoteSession{fakeSession: &fakeSession{}, id: "abc123"})
	tgt.remote = true
	d, hook := quietDriver(factoryFor(tgt), &fakeReporter{})

	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)

	var lines []string
	for _, e := range hook.AllEntries() {
		if e.Level == log.InfoLevel {
			lines = append(lines, e.Message)
		}
	}
	assert.Equal(t, []string{"Remote job url: https://grid.example/jobs/abc123"}, lines)

	id, err := d.JobID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	sid, err := d.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", sid)

	remote, err := d.IsRemote(ctx)
	require.NoError(t, err)
	assert.True(t, remote)
}

func TestLocalOpenLogsNothingAtInfo(t *testing.T) {
	d, hook := quietDriver(factoryFor(newFakeTarget("T", &fakeSession{})), &fakeReporter{})

	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, log.InfoLevel, e.Level)
	}

	sid, err := d.SessionID(ctx)
	require.NoError(t, err)
	assert.Empty(t, sid)

	u, err := d.JobURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, u)
}

func TestJobIDFailureDegradesToEmpty(t *testing.T) {
	tgt := newFakeTarget("T", &remoteSession{fakeSession: &fakeSession{}, id: "abc123"})
	tgt.remote = true
	d, hook := quietDriver(factoryFor(tgt), &fakeReporter{idErr: errors.New("no id")})

	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)

	id, err := d.JobID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, "Remote job url: ", hook.LastEntry().Message)
}

func TestOptionalCapabilities(t *testing.T) {
	d, _ := quietDriver(factoryFor(newFakeTarget("T", &fakeSession{})), nil)
	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)

	_, err = d.ExecuteScript(ctx, "return 1")
	assert.ErrorIs(t, err, ErrUnsupported)
	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "ScriptExecutor", capErr.Capability)

	_, err = d.Mouse(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, ok := As[webdriver.ScriptExecutor](ctx)
	assert.False(t, ok)

	d, _ = quietDriver(factoryFor(newFakeTarget("T", &scriptSession{&fakeSession{}})), nil)
	ctx, err = d.Open(context.Background(), "T", "")
	require.NoError(t, err)

	got, err := d.ExecuteScript(ctx, "return ", 1)
	require.NoError(t, err)
	assert.Equal(t, "return [1]", got)

	got, err = d.ExecuteAsyncScript(ctx, "done()")
	require.NoError(t, err)
	assert.Equal(t, "async:done()", got)

	se, ok := As[webdriver.ScriptExecutor](ctx)
	require.True(t, ok)
	assert.NotNil(t, se)
}

func TestCloseKeepsBindingQuitClearsIt(t *testing.T) {
	s := &fakeSession{}
	d, _ := quietDriver(factoryFor(newFakeTarget("T", s)), nil)
	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)

	require.NoError(t, d.Close(ctx))
	assert.Equal(t, 1, s.closes)
	require.NoError(t, d.Get(ctx, "https://example.com"))

	require.NoError(t, d.Quit(ctx))
	assert.EqualValues(t, 1, s.quits.Load())
	assert.ErrorIs(t, d.Get(ctx, "https://example.com"), ErrSessionClosed)
	_, err = d.Test(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, d.Quit(ctx), ErrSessionClosed)

	require.NoError(t, d.Release(ctx))
	assert.EqualValues(t, 1, s.quits.Load())
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := &fakeSession{}
	d, _ := quietDriver(factoryFor(newFakeTarget("T", s)), nil)
	ctx, err := d.Open(context.Background(), "T", "")
	require.NoError(t, err)

	require.NoError(t, d.Release(ctx))
	require.NoError(t, d.Release(ctx))
	assert.EqualValues(t, 1, s.quits.Load())
	_, err = d.Browser(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestReopenDoesNotTouchParentBinding(t *testing.T) {
	first, second := &fakeSession{title: "first"}, &fakeSession{title: "second"}
	sessions := []webdriver.Session{first, second}
	var n int
	d, _ := quietDriver(func(test string) (Target, error) {
		tgt := newFakeTarget(test, sessions[n])
		n++
		return tgt, nil
	}, nil)

	parent, err := d.Open(context.Background(), "A", "")
	require.NoError(t, err)
	child, err := d.Open(parent, "B", "")
	require.NoError(t, err)

	title, err := d.Title(parent)
	require.NoError(t, err)
	assert.Equal(t, "first", title)
	title, err = d.Title(child)
	require.NoError(t, err)
	assert.Equal(t, "second", title)
}

func TestBindingsAreIsolatedBetweenGoroutines(t *testing.T) {
	d, _ := quietDriver(func(test string) (Target, error) {
		return newFakeTarget(test, &fakeSession{}), nil
	}, nil)

	const workers = 16
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return d.Run(context.Background(), fmt.Sprintf("Test%d", i), "", func(ctx context.Context) error {
				want := fmt.Sprintf("https://example.com/%d", i)
				if err := d.Get(ctx, want); err != nil {
					return err
				}
				got, err := d.CurrentURL(ctx)
				if err != nil {
					return err
				}
				name, err := d.Test(ctx)
				if err != nil {
					return err
				}
				if got != want || name != fmt.Sprintf("Test%d", i) {
					return fmt.Errorf("worker %d saw %s/%s", i, name, got)
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
}

func TestRunReportsResultAndReleases(t *testing.T) {
	reporter := &fakeReporter{}
	sessions := map[string]*fakeSession{}
	d, _ := quietDriver(func(test string) (Target, error) {
		s := &fakeSession{}
		sessions[test] = s
		tgt := newFakeTarget(test, &remoteSession{fakeSession: s, id: "job-" + test})
		tgt.remote = true
		return tgt, nil
	}, reporter)

	var bound context.Context
	err := d.Run(context.Background(), "ok", "", func(ctx context.Context) error {
		bound = ctx
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Get(bound, "https://example.com"), ErrSessionClosed)

	failure := errors.New("assertion failed")
	err = d.Run(context.Background(), "fails", "", func(context.Context) error { return failure })
	assert.Same(t, failure, err)

	assert.Panics(t, func() {
		_ = d.Run(context.Background(), "panics", "", func(context.Context) error { panic("boom") })
	})

	assert.Equal(t, map[string]bool{"job-ok": true, "job-fails": false, "job-panics": false}, reporter.results)
	for name, s := range sessions {
		assert.EqualValues(t, 1, s.quits.Load(), name)
	}
}

func TestRunSkipsReportingForLocalSessions(t *testing.T) {
	reporter := &fakeReporter{}
	d, _ := quietDriver(factoryFor(newFakeTarget("T", &fakeSession{})), reporter)

	require.NoError(t, d.Run(context.Background(), "T", "", func(context.Context) error { return nil }))
	assert.Empty(t, reporter.results)
}
