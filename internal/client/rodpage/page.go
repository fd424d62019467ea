// Package rodpage runs a client.Session inside a real browser tab driven by go-rod.
package rodpage

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const (
	hrefJS = `() => location.href`

	hasXPathJS = `(xp) => document.evaluate(xp, document, null,
		XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue !== null`

	valueAtJS = `(xp) => {
		const n = document.evaluate(xp, document, null,
			XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!n) return null;
		if ("value" in n && typeof n.value === "string") return n.value;
		return (n.textContent || "").trim();
	}`
)

// Page adapts a rod page to client.Page and client.CookieJar. Cookies are scoped to the
// page's current URL.
type Page struct {
	page *rod.Page
}

// New wraps page.
func New(page *rod.Page) *Page {
	return &Page{page: page}
}

// URL returns location.href.
func (p *Page) URL(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(hrefJS)
	if err != nil {
		return "", fmt.Errorf("rodpage: location: %w", err)
	}
	return res.Value.Str(), nil
}

// HasXPath reports whether xpath selects a node in the document.
func (p *Page) HasXPath(ctx context.Context, xpath string) (bool, error) {
	res, err := p.page.Context(ctx).Eval(hasXPathJS, xpath)
	if err != nil {
		return false, fmt.Errorf("rodpage: xpath %q: %w", xpath, err)
	}
	return res.Value.Bool(), nil
}

// ValueAt returns the form value or trimmed text of the first node selected by xpath.
func (p *Page) ValueAt(ctx context.Context, xpath string) (string, bool, error) {
	res, err := p.page.Context(ctx).Eval(valueAtJS, xpath)
	if err != nil {
		return "", false, fmt.Errorf("rodpage: xpath %q: %w", xpath, err)
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

// Cookie returns the named cookie of the current URL.
func (p *Page) Cookie(name string) (string, bool) {
	cookies, err := p.page.Cookies(nil)
	if err != nil {
		return "", false
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SetCookie writes a session cookie for the current URL.
func (p *Page) SetCookie(name, value string) error {
	u, err := p.URL(context.Background())
	if err != nil {
		return err
	}
	return p.page.SetCookies([]*proto.NetworkCookieParam{{Name: name, Value: value, URL: u}})
}

// EraseCookie deletes the named cookie for the current URL.
func (p *Page) EraseCookie(name string) error {
	u, err := p.URL(context.Background())
	if err != nil {
		return err
	}
	return proto.NetworkDeleteCookies{Name: name, URL: u}.Call(p.page)
}
