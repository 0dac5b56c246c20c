package browser

import (
	"fmt"
	"math"
	"time"

	"github.com/luispater/webtest/internal/webdriver"
	"github.com/playwright-community/playwright-go"
)

type options struct{ s *Session }

func (o options) Timeouts() webdriver.Timeouts { return timeouts(o) }

func (o options) Cookies() ([]webdriver.Cookie, error) {
	cookies, err := o.s.m.Context.Cookies()
	if err != nil {
		return nil, err
	}
	out := make([]webdriver.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, fromPlaywrightCookie(c))
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
	page, _ := o.s.state()
	return o.s.m.Context.AddCookies([]playwright.OptionalCookie{toOptionalCookie(cookie, page.URL())})
}

// DeleteCookie re-adds every other cookie after clearing the jar, since
// clearing by name is not available on all playwright releases.
func (o options) DeleteCookie(name string) error {
	cookies, err := o.s.m.Context.Cookies()
	if err != nil {
		return err
	}
	keep := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == name {
			continue
		}
		keep = append(keep, toOptionalCookie(fromPlaywrightCookie(c), ""))
	}
	if err = o.s.m.Context.ClearCookies(); err != nil {
		return err
	}
	if len(keep) == 0 {
		return nil
	}
	return o.s.m.Context.AddCookies(keep)
}

func (o options) DeleteAllCookies() error {
	return o.s.m.Context.ClearCookies()
}

func fromPlaywrightCookie(c playwright.Cookie) webdriver.Cookie {
	out := webdriver.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
	if c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		out.Expiry = time.Unix(int64(sec), int64(frac*1e9))
	}
	return out
}

// toOptionalCookie scopes cookies without a domain to pageURL.
func toOptionalCookie(c webdriver.Cookie, pageURL string) playwright.OptionalCookie {
	out := playwright.OptionalCookie{
		Name:     c.Name,
		Value:    c.Value,
		Secure:   playwright.Bool(c.Secure),
		HttpOnly: playwright.Bool(c.HTTPOnly),
	}
	if c.Domain != "" {
		out.Domain = playwright.String(c.Domain)
		path := c.Path
		if path == "" {
			path = "/"
		}
		out.Path = playwright.String(path)
	} else {
		out.URL = playwright.String(pageURL)
	}
	if !c.Expiry.IsZero() {
		out.Expires = playwright.Float(float64(c.Expiry.UnixNano()) / 1e9)
	}
	return out
}
