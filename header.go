package cachingproxy

import (
	"bufio"
	"fmt"
	"strings"
)

// User-Agent sent on every outbound request, replacing whatever the
// client supplied.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:3.10.0) Gecko/20191101 Firefox/63.0.1"

// rewriteHeaders consumes the client's header lines up to the blank
// terminator and builds the outbound header block for the origin: the
// request line downgraded to HTTP/1.0, a Host header for the resolved
// origin, a fixed User-Agent, and persistent connections disabled.
// Client header lines other than Host, Connection, User-Agent and
// Proxy-Connection are passed through verbatim, terminators included.
func rewriteHeaders(r *bufio.Reader, host, port, path, userAgent string) (string, error) {
	var other strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read client headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		if strings.Contains(line, "Host") ||
			strings.Contains(line, "Connection") ||
			strings.Contains(line, "User-Agent") ||
			strings.Contains(line, "Proxy-Connection") {
			continue
		}
		other.WriteString(line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.0\r\n", path)
	fmt.Fprintf(&b, "Host: %s:%s\r\n", host, port)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	b.WriteString("Connection: close\r\n")
	b.WriteString("Proxy-Connection: close\r\n")
	b.WriteString(other.String())
	b.WriteString("\r\n")
	return b.String(), nil
}
