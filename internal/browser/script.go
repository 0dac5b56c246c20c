package browser

import (
	"fmt"
	"time"

	"github.com/luispater/webtest/internal/webdriver"
	"github.com/playwright-community/playwright-go"
)

func (s *Session) ExecuteScript(script string, args ...any) (any, error) {
	converted, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	return s.evaluate(scriptFunction(script), converted)
}

func (s *Session) ExecuteAsyncScript(script string, args ...any) (any, error) {
	converted, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	timeout := s.script
	s.mu.Unlock()
	return s.evaluate(asyncScriptFunction(script, timeout), converted)
}

func (s *Session) evaluate(function string, args []any) (any, error) {
	page, frame := s.state()
	if frame != nil {
		return frame.Evaluate(function, args)
	}
	return page.Evaluate(function, args)
}

// convertArgs resolves element arguments to element handles so scripts receive DOM nodes.
func convertArgs(args []any) ([]any, error) {
	converted := make([]any, 0, len(args))
	for i, arg := range args {
		if e, ok := arg.(*Element); ok {
			handle, err := e.locator.ElementHandle()
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			converted = append(converted, handle)
			continue
		}
		converted = append(converted, arg)
	}
	return converted, nil
}

func scriptFunction(script string) string {
	return fmt.Sprintf(`(args) => {
	const result = (function() {
%s
	}).apply(null, args);
	return result === undefined ? null : result;
}`, script)
}

func asyncScriptFunction(script string, timeout time.Duration) string {
	guard := ""
	if timeout > 0 {
		guard = fmt.Sprintf(`setTimeout(() => reject(new Error("script timeout after %s")), %d);`, timeout, timeout.Milliseconds())
	}
	return fmt.Sprintf(`(args) => new Promise((resolve, reject) => {
	args.push((result) => resolve(result === undefined ? null : result));
	%s
	(function() {
%s
	}).apply(null, args);
})`, guard, script)
}

func (s *Session) Keyboard() webdriver.Keyboard { return keyboard{s} }
func (s *Session) Mouse() webdriver.Mouse       { return mouse{s} }

type keyboard struct{ s *Session }

func (k keyboard) page() playwright.Page {
	page, _ := k.s.state()
	return page
}

func (k keyboard) SendKeys(keys string) error  { return k.page().Keyboard().Type(keys) }
func (k keyboard) PressKey(key string) error   { return k.page().Keyboard().Down(key) }
func (k keyboard) ReleaseKey(key string) error { return k.page().Keyboard().Up(key) }

type mouse struct{ s *Session }

func (m mouse) page() playwright.Page {
	page, _ := m.s.state()
	return page
}

func (m mouse) Click(x, y float64) error       { return m.page().Mouse().Click(x, y) }
func (m mouse) DoubleClick(x, y float64) error { return m.page().Mouse().Dblclick(x, y) }
func (m mouse) MoveTo(x, y float64) error      { return m.page().Mouse().Move(x, y) }
