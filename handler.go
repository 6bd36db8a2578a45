package cachingproxy

import (
	"bufio"
	"io"
	"net"
	"strings"
	"time"

	"github.com/caching-proxy/caching-proxy/accesslog"
	"github.com/caching-proxy/caching-proxy/cache"
)

// relayBufferSize is the chunk size used when streaming the origin
// response to the client.
const relayBufferSize = 8192

// handleConn serves one client connection end to end and always closes
// it. All errors are handled here; nothing propagates to the acceptor.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Str("client", conn.RemoteAddr().String()).Logger()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Debug().Err(err).Msg("Could not read request line")
		return
	}

	fields := strings.Fields(line)
	if len(fields) < 3 {
		token := ""
		if len(fields) > 0 {
			token = fields[0]
		}
		clientError(conn, token, "400", "Bad Request", "Error parsing request")
		s.record(conn, token, "", accesslog.OutcomeBadRequest, 0)
		return
	}
	method, uri := fields[0], fields[1]

	if !strings.EqualFold(method, "GET") {
		clientError(conn, method, "501", "Not implemented", "Proxy does not implement this method")
		s.record(conn, method, uri, accesslog.OutcomeNotImplemented, 0)
		return
	}

	// cache check, keyed by the raw request target
	if obj, ok := s.store.Lookup(uri); ok {
		defer obj.Release()
		n, err := conn.Write(obj.Body())
		if err != nil {
			log.Debug().Err(err).Msg("Client went away during cached write")
		}
		log.Debug().Str("url", uri).Int("bytes", n).Msg("Served from cache")
		s.record(conn, method, uri, accesslog.OutcomeHit, n)
		return
	}

	host, port, path, err := splitRequestURI(uri)
	if err != nil {
		clientError(conn, uri, "400", "Bad Request", "Error parsing request")
		s.record(conn, method, uri, accesslog.OutcomeBadRequest, 0)
		return
	}

	origin, err := dialOrigin(host, port, s.dialTimeout)
	if err != nil {
		// fail closed: the client connection is dropped without a body
		log.Debug().Err(err).Str("url", uri).Msg("Origin unreachable")
		s.record(conn, method, uri, accesslog.OutcomeOriginUnreachable, 0)
		return
	}
	defer origin.Close()

	header, err := rewriteHeaders(reader, host, port, path, s.userAgent)
	if err != nil {
		log.Debug().Err(err).Msg("Client closed before end of headers")
		return
	}
	if _, err := io.WriteString(origin, header); err != nil {
		log.Debug().Err(err).Str("url", uri).Msg("Could not forward request")
		return
	}

	written, body, err := relay(conn, origin)
	if err != nil {
		log.Debug().Err(err).Str("url", uri).Msg("Relay ended early")
	} else if body != nil {
		s.store.Insert(uri, body)
	}
	s.record(conn, method, uri, accesslog.OutcomeMiss, written)
	log.Debug().
		Str("url", uri).
		Int("bytes", written).
		Bool("cached", err == nil && body != nil).
		Msg("Relayed from origin")
}

// relay streams the origin response to the client in fixed-size chunks,
// accumulating at most cache.MaxObjectSize bytes for a later cache
// insert. Once the response outgrows that bound the bytes keep flowing
// to the client but buffering stops; the returned body is nil in that
// case and on any transfer error.
func relay(client io.Writer, origin io.Reader) (int, []byte, error) {
	var (
		buf     [relayBufferSize]byte
		body    = make([]byte, 0, relayBufferSize)
		written int
		tooBig  bool
	)
	for {
		n, rerr := origin.Read(buf[:])
		if n > 0 {
			wn, werr := client.Write(buf[:n])
			written += wn
			if werr != nil {
				return written, nil, werr
			}
			if !tooBig {
				if len(body)+n > cache.MaxObjectSize {
					tooBig = true
					body = nil
				} else {
					body = append(body, buf[:n]...)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, nil, rerr
		}
	}
	return written, body, nil
}

// record appends the request to the access log, if one is configured.
func (s *Server) record(conn net.Conn, method, uri string, outcome accesslog.Outcome, bytes int) {
	if s.alog == nil {
		return
	}
	rec := accesslog.Record{
		Time:    time.Now(),
		SrcIP:   remoteIP(conn),
		Method:  method,
		URI:     uri,
		Outcome: outcome,
		Bytes:   bytes,
	}
	if err := s.alog.Append(rec); err != nil {
		s.log.Warn().Err(err).Msg("Could not append access log record")
	}
}

func remoteIP(conn net.Conn) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := conn.RemoteAddr().String()
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}
