package chrome

import (
	"context"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/luispater/webtest/internal/webdriver"
)

func (s *Session) Keyboard() webdriver.Keyboard { return keyboard{s} }
func (s *Session) Mouse() webdriver.Mouse       { return mouse{s} }

type keyboard struct{ s *Session }

func (k keyboard) SendKeys(keys string) error {
	return k.s.run(0, chromedp.KeyEvent(keys))
}

func (k keyboard) PressKey(key string) error {
	return k.s.run(0, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchKeyEvent(input.KeyDown).WithKey(key).Do(ctx)
	}))
}

func (k keyboard) ReleaseKey(key string) error {
	return k.s.run(0, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchKeyEvent(input.KeyUp).WithKey(key).Do(ctx)
	}))
}

type mouse struct{ s *Session }

func (m mouse) Click(x, y float64) error {
	return m.s.run(0, chromedp.MouseClickXY(x, y))
}

func (m mouse) DoubleClick(x, y float64) error {
	return m.s.run(0, chromedp.MouseClickXY(x, y, chromedp.ClickCount(2)))
}

func (m mouse) MoveTo(x, y float64) error {
	return m.s.run(0, chromedp.MouseEvent(input.MouseMoved, x, y))
}
