package chrome

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/luispater/webtest/internal/webdriver"
)

// SetCookies sets cookies on the browser of pageCtx.
func SetCookies(pageCtx context.Context, cookies []*network.CookieParam) error {
	if len(cookies) == 0 {
		return nil
	}

	err := chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(cookies).Do(ctx)
	}))

	if err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// GetCookies returns the cookies visible to the current page of pageCtx.
func GetCookies(pageCtx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))

	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}
	return cookies, nil
}

type options struct{ s *Session }

func (o options) Timeouts() webdriver.Timeouts { return timeouts(o) }

func (o options) Cookies() ([]webdriver.Cookie, error) {
	t, _, err := o.s.state()
	if err != nil {
		return nil, err
	}
	cookies, err := GetCookies(t.ctx)
	if err != nil {
		return nil, err
	}
	out := make([]webdriver.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, fromNetworkCookie(c))
	}
	return out, nil
}

func (o options) Cookie(name string) (webdriver.Cookie, error) {
	cookies, err := o.Cookies()
	if err != nil {
		return webdriver.Cookie{}, err
	}
	for _, c := range cookies {
		if c.Name == name {
			return c, nil
		}
	}
	return webdriver.Cookie{}, fmt.Errorf("%w: %s", webdriver.ErrNoSuchCookie, name)
}

func (o options) AddCookie(cookie webdriver.Cookie) error {
	param := toCookieParam(cookie)
	if param.Domain == "" {
		currentURL, err := o.s.CurrentURL()
		if err != nil {
			return err
		}
		param.URL = currentURL
	}
	t, _, err := o.s.state()
	if err != nil {
		return err
	}
	return SetCookies(t.ctx, []*network.CookieParam{param})
}

func (o options) DeleteCookie(name string) error {
	currentURL, err := o.s.CurrentURL()
	if err != nil {
		return err
	}
	return o.s.run(0, network.DeleteCookies(name).WithURL(currentURL))
}

func (o options) DeleteAllCookies() error {
	t, _, err := o.s.state()
	if err != nil {
		return err
	}
	return ClearBrowserCookies(t.ctx)
}

func fromNetworkCookie(c *network.Cookie) webdriver.Cookie {
	out := webdriver.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		out.Expiry = time.Unix(int64(sec), int64(frac*1e9))
	}
	return out
}

func toCookieParam(c webdriver.Cookie) *network.CookieParam {
	param := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if !c.Expiry.IsZero() {
		expires := cdp.TimeSinceEpoch(c.Expiry)
		param.Expires = &expires
	}
	return param
}
