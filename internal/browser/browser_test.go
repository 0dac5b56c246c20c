package browser

import (
	"testing"
	"time"

	"github.com/luispater/webtest/internal/webdriver"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptFunction(t *testing.T) {
	fn := scriptFunction("return document.title;")
	assert.Contains(t, fn, "(args) => {")
	assert.Contains(t, fn, "return document.title;")
	assert.Contains(t, fn, ".apply(null, args)")
}

func TestAsyncScriptFunction(t *testing.T) {
	fn := asyncScriptFunction("arguments[arguments.length - 1](1);", 0)
	assert.Contains(t, fn, "args.push(")
	assert.NotContains(t, fn, "setTimeout")

	fn = asyncScriptFunction("arguments[arguments.length - 1](1);", 2*time.Second)
	assert.Contains(t, fn, "), 2000);")
}

func TestConvertArgsKeepsPlainValues(t *testing.T) {
	args, err := convertArgs([]any{"a", 1, true})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", 1, true}, args)

	args, err = convertArgs(nil)
	require.NoError(t, err)
	assert.NotNil(t, args)
	assert.Empty(t, args)
}

func TestCookieConversion(t *testing.T) {
	cookie := fromPlaywrightCookie(playwright.Cookie{Name: "sid", Value: "1", Domain: ".example.com", Path: "/", Expires: 1700000000, HttpOnly: true})
	assert.Equal(t, time.Unix(1700000000, 0), cookie.Expiry)
	assert.True(t, cookie.HTTPOnly)

	session := fromPlaywrightCookie(playwright.Cookie{Name: "tmp", Expires: -1})
	assert.True(t, session.Expiry.IsZero())

	scoped := toOptionalCookie(webdriver.Cookie{Name: "a", Value: "b"}, "https://example.com/login")
	require.NotNil(t, scoped.URL)
	assert.Equal(t, "https://example.com/login", *scoped.URL)
	assert.Nil(t, scoped.Domain)
	assert.Nil(t, scoped.Expires)

	withDomain := toOptionalCookie(webdriver.Cookie{Name: "a", Domain: "example.com", Expiry: time.Unix(1700000000, 0)}, "")
	require.NotNil(t, withDomain.Path)
	assert.Equal(t, "/", *withDomain.Path)
	require.NotNil(t, withDomain.Expires)
	assert.Equal(t, float64(1700000000), *withDomain.Expires)
}

func TestInstallBrowsersSkipsWithoutPlaywrightEngines(t *testing.T) {
	assert.NoError(t, InstallBrowsers(false, webdriver.Chrome, webdriver.InternetExplorer))
}

type framePage struct {
	playwright.Page
	frames []playwright.Frame
}

func (p *framePage) Frames() []playwright.Frame { return p.frames }

type fakeFrame struct {
	playwright.Frame
	name     string
	id       string
	children []playwright.Frame
}

func (f *fakeFrame) Name() string                    { return f.name }
func (f *fakeFrame) ChildFrames() []playwright.Frame { return f.children }

func (f *fakeFrame) FrameElement() (playwright.ElementHandle, error) {
	return &frameElement{id: f.id}, nil
}

type frameElement struct {
	playwright.ElementHandle
	id string
}

func (e *frameElement) GetAttribute(name string) (string, error) {
	if name == "id" {
		return e.id, nil
	}
	return "", nil
}

func (e *frameElement) Dispose() error { return nil }

func TestSwitchToFrameMatchesNameOrID(t *testing.T) {
	nested := &fakeFrame{id: "editor"}
	byName := &fakeFrame{name: "ads"}
	byID := &fakeFrame{id: "content", children: []playwright.Frame{nested}}
	s := newSession(nil, &framePage{frames: []playwright.Frame{byName, byID}})

	require.NoError(t, s.SwitchTo().Frame("content"))
	_, frame := s.state()
	assert.Same(t, byID, frame)

	require.NoError(t, s.SwitchTo().Frame("editor"))
	_, frame = s.state()
	assert.Same(t, nested, frame)

	require.NoError(t, s.SwitchTo().DefaultContent())
	require.NoError(t, s.SwitchTo().Frame("ads"))
	_, frame = s.state()
	assert.Same(t, byName, frame)

	assert.ErrorIs(t, s.SwitchTo().Frame("missing"), webdriver.ErrNoSuchFrame)
}
