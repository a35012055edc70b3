package ws

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientOptions configures a client-side Open call.
type ClientOptions struct {
	// HTTPClient performs the upgrade request. If nil, http.DefaultClient
	// is used. Its Transport controls TLS configuration for wss:// URLs.
	HTTPClient *http.Client

	// Header carries additional request headers (e.g. cookies or
	// Authorization) to send with the upgrade request.
	Header http.Header

	// Subprotocols lists, in preference order, the subprotocols this
	// client is willing to speak.
	Subprotocols []string

	// ReadTimeout is the read timeout recorded on the resulting Conn.
	// Defaults to 180s. It has no effect on Conns returned by Open: the
	// stream recovered from the response body (rwcConn) ignores read
	// deadlines, so reads on it are not bounded.
	ReadTimeout time.Duration

	// ChunkSize, if > 0, is the maximum payload size per outgoing frame.
	ChunkSize int
}

// Open performs a client-side WebSocket handshake against u ("ws://" or
// "wss://") and returns the resulting Conn. It builds a normal HTTP
// request and issues it through opts.HTTPClient.Do, then recovers the
// hijacked duplex stream from the 101 response's body — the same approach
// a net/http-based server uses to hand back a raw connection after
// switching protocols, rather than dialing TCP directly and writing the
// request line by hand.
func Open(ctx context.Context, rawURL string, opts ClientOptions) (*Conn, *http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if u.Fragment != "" {
		return nil, nil, &HandshakeError{Reason: "url must not contain a fragment; percent-encode the '#'"}
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, nil, &HandshakeError{Reason: "unsupported URL scheme: " + u.Scheme}
	}

	key, err := generateClientKey()
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	if opts.Header != nil {
		req.Header = opts.Header.Clone()
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", key)
	if len(opts.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(opts.Subprotocols, ", "))
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, &TransportError{Err: err}
	}

	subprotocol, err := verifyServerResponse(resp, key, opts.Subprotocols)
	if err != nil {
		resp.Body.Close()
		return nil, resp, err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		resp.Body.Close()
		return nil, resp, &HandshakeError{Reason: "http client did not return a hijackable connection"}
	}

	nc := &rwcConn{ReadWriteCloser: rwc, remote: req.Host}
	c := newConn(nc, RoleClient, subprotocol, opts.readTimeout(), opts.ChunkSize)
	return c, resp, nil
}

func (o *ClientOptions) readTimeout() time.Duration {
	if o.ReadTimeout > 0 {
		return o.ReadTimeout
	}
	return 180 * time.Second
}

// rwcConn adapts the io.ReadWriteCloser recovered from an http.Response
// body into the net.Conn shape Conn expects, since the stdlib transport
// does not hand back a *net.TCPConn once it has taken over the socket for
// a 101 response.
type rwcConn struct {
	io.ReadWriteCloser
	remote string
}

func (c *rwcConn) LocalAddr() net.Addr  { return addr("") }
func (c *rwcConn) RemoteAddr() net.Addr { return addr(c.remote) }

func (c *rwcConn) SetDeadline(t time.Time) error      { return nil }
func (c *rwcConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *rwcConn) SetWriteDeadline(t time.Time) error { return nil }

// addr is a minimal net.Addr for the recovered client stream, whose
// identity (a hijacked HTTP transport connection) has no separately
// addressable local/remote socket the way a dialed net.Conn would.
type addr string

func (a addr) Network() string { return "tcp" }
func (a addr) String() string  { return string(a) }
