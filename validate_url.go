package velox

import (
	"net"
	"net/url"
)

// URLValidator decides whether a request's URL is admissible before it
// reaches the middleware chain. The default rejects anything that isn't
// an absolute http(s) URL with a host; callers needing to restrict
// requests to an allow-list of hosts can install their own.
type URLValidator func(rawURL string) error

// DefaultURLValidator requires an absolute http or https URL with a host.
func DefaultURLValidator(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ClientError{Kind: InvalidInputKind, Message: "malformed URL", Cause: err, URL: rawURL}
	}
	if !u.IsAbs() {
		return &ClientError{Kind: InvalidInputKind, Message: "URL must be absolute", URL: rawURL}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ClientError{Kind: InvalidInputKind, Message: "URL scheme must be http or https", URL: rawURL}
	}
	if u.Host == "" {
		return &ClientError{Kind: InvalidInputKind, Message: "URL must have a host", URL: rawURL}
	}
	if ip := net.ParseIP(u.Hostname()); ip != nil && isReservedIP(ip) {
		return &ClientError{Kind: InvalidInputKind, Message: "URL host is a private or reserved address", URL: rawURL}
	}
	return nil
}

func isReservedIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// AllowHosts returns a URLValidator that additionally rejects any host not
// in the given allow-list.
func AllowHosts(hosts ...string) URLValidator {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		allowed[h] = true
	}
	return func(rawURL string) error {
		if err := DefaultURLValidator(rawURL); err != nil {
			return err
		}
		u, _ := url.Parse(rawURL)
		if !allowed[u.Host] {
			return &ClientError{Kind: InvalidInputKind, Message: "host not in allow-list: " + u.Host, URL: rawURL}
		}
		return nil
	}
}

// AllowPrivateNetworks applies every DefaultURLValidator check except the
// private/reserved-IP rejection: an absolute http(s) URL with a host is
// still required, but a loopback or link-local host is admitted. Intended
// for clients talking to a local or internal service (a test server, a
// sidecar), where that host is the point rather than a mistake.
func AllowPrivateNetworks(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ClientError{Kind: InvalidInputKind, Message: "malformed URL", Cause: err, URL: rawURL}
	}
	if !u.IsAbs() {
		return &ClientError{Kind: InvalidInputKind, Message: "URL must be absolute", URL: rawURL}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ClientError{Kind: InvalidInputKind, Message: "URL scheme must be http or https", URL: rawURL}
	}
	if u.Host == "" {
		return &ClientError{Kind: InvalidInputKind, Message: "URL must have a host", URL: rawURL}
	}
	return nil
}
