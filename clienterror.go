package cachingproxy

import (
	"fmt"
	"io"
)

// clientError writes a literal HTTP error page to the client. The page
// format mirrors the Tiny web server's error responses.
func clientError(w io.Writer, cause, code, short, long string) {
	body := fmt.Sprintf(
		"<html><title>Tiny Error</title><body bgcolor=ffffff>\r\n"+
			"%s: %s\r\n"+
			"<p>%s: %s\r\n"+
			"<hr><em>The Tiny Web server</em>\r\n",
		code, short, long, cause)

	fmt.Fprintf(w, "HTTP/1.0 %s %s\r\n", code, short)
	fmt.Fprintf(w, "Content-type: text/html\r\n")
	fmt.Fprintf(w, "Content-length: %d\r\n\r\n", len(body))
	io.WriteString(w, body)
}
