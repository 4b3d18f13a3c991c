package download

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// parseSourceURL returns the parsed URL if it is an absolute http(s)
// URL with a host.
func parseSourceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}

	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return nil, ErrInvalidURL
	}

	return u, nil
}

// RegistrableDomain returns the eTLD+1 of the URL's host (e.g.
// 'cdn.example.co.uk' -> 'example.co.uk'). Hosts without a registrable
// domain, such as IP addresses and 'localhost', are returned as-is.
func RegistrableDomain(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}

	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}

	return host
}
