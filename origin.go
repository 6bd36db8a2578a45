package cachingproxy

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// splitRequestURI extracts the origin host, port and origin-form path
// (including any query) from the request target. A forward proxy only
// sees absolute URIs on the request line, so targets without a host are
// rejected.
func splitRequestURI(uri string) (host, port, path string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("parse request target: %w", err)
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("no host in request target %q", uri)
	}
	host = u.Hostname()
	port = u.Port()
	if port == "" {
		port = "80"
	}
	return host, port, u.RequestURI(), nil
}

// dialOrigin opens the outbound connection for a parsed request.
func dialOrigin(host, port string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.Dial("tcp", net.JoinHostPort(host, port))
}
