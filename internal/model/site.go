package model

import (
	"fmt"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// BaseURI strips path, query, and fragment from a URI, keeping scheme and
// host. App destinations are identified by their base URI.
func BaseURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("base uri %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base uri %q: missing scheme or host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// TopPrivateDomain reduces a publisher or destination URI to the site the
// rate-limit ledger is keyed on: the base URI for app surfaces, the scheme
// plus effective top-level domain + 1 for web surfaces.
func TopPrivateDomain(raw string, surface Surface) (string, error) {
	if surface == SurfaceApp {
		return BaseURI(raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("top private domain %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("top private domain %q: missing scheme or host", raw)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		return "", fmt.Errorf("top private domain %q: %w", raw, err)
	}
	return u.Scheme + "://" + domain, nil
}
