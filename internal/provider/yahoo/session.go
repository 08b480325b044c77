package yahoo

import (
	"context"
	"io"
	"strings"

	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
)

// crumbMaxLen bounds a sane crumb token. Real crumbs are ~11 chars;
// anything much longer is an error page leaking through.
const crumbMaxLen = 64

// Session is the short-lived credential pair the authenticated quote
// endpoint requires: a session cookie and the matching crumb token.
// It lives for one resolution and is never cached across requests.
type Session struct {
	Cookie string
	Crumb  string
}

// acquire runs the two-step protocol: harvest a session cookie from the
// landing host, then exchange it for a crumb. A failed acquisition is
// reported once and not retried; the orchestrator moves on to the next
// provider in the chain.
func (p *Provider) acquire(ctx context.Context) (Session, error) {
	resp, err := p.client.Get(ctx, p.cfg.LandingURL, nil)
	if err != nil {
		return Session{}, proverr.New(market.Yahoo, proverr.KindCredential, err)
	}
	cookie := resp.Header.Get("Set-Cookie")
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
	if i := strings.Index(cookie, ";"); i > 0 {
		cookie = cookie[:i]
	}
	if strings.TrimSpace(cookie) == "" {
		return Session{}, proverr.Newf(market.Yahoo, proverr.KindCredential, "no session cookie from %s", p.cfg.LandingURL)
	}

	resp, err = p.client.Get(ctx, p.cfg.CrumbURL, map[string]string{"Cookie": cookie})
	if err != nil {
		return Session{}, proverr.New(market.Yahoo, proverr.KindCredential, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, proverr.Newf(market.Yahoo, proverr.KindCredential, "getcrumb -> %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	if err != nil {
		return Session{}, proverr.New(market.Yahoo, proverr.KindCredential, err)
	}
	crumb := strings.TrimSpace(string(b))
	if err := validateCrumb(crumb); err != nil {
		return Session{}, proverr.New(market.Yahoo, proverr.KindCredential, err)
	}
	return Session{Cookie: cookie, Crumb: crumb}, nil
}

// validateCrumb rejects tokens that cannot be a crumb before they reach
// the quote call: empty, oversized, or a JSON/HTML payload in disguise.
func validateCrumb(crumb string) error {
	switch {
	case crumb == "":
		return errEmptyCrumb
	case len(crumb) > crumbMaxLen:
		return errCrumbTooLong
	case strings.HasPrefix(crumb, "{") || strings.HasPrefix(crumb, "<"):
		return errCrumbNotToken
	}
	return nil
}
