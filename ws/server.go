package ws

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Handler is invoked once per accepted connection, after the upgrade
// handshake completes, with no access to the originating request.
type Handler func(c *Conn)

// HandlerWithRequest is the same as Handler but also receives the
// request's headers, for handlers that need origin/cookie-based
// gatekeeping beyond CheckOrigin/AllowedOrigins.
type HandlerWithRequest func(header http.Header, c *Conn)

// ServerOptions configures a Server's handshake policy and per-connection
// defaults.
type ServerOptions struct {
	// TLSConfig is stored but not used by Server: Server has no listener of
	// its own, and ServeHTTP assumes TLS (if any) is already terminated by
	// the caller's http.Server.
	TLSConfig *tls.Config

	// ReadTimeout bounds how long a connection may go without a frame
	// before it is force-closed; it also bounds the wait for the peer's
	// CLOSE frame during a locally-initiated closing handshake. Defaults
	// to 180s.
	ReadTimeout time.Duration

	// RateLimit and RateBurst bound upgrade attempts per remote IP.
	// Defaults to 10 req/s, burst 10.
	RateLimit  rate.Limit
	RateBurst  int

	// ChunkSize, if > 0, is the maximum payload size per outgoing frame;
	// larger WriteMessage calls are fragmented across multiple frames.
	ChunkSize int

	// Subprotocols lists the subprotocols this server supports. The first
	// subprotocol in the client's request that also appears here is
	// selected, so the client's order decides.
	Subprotocols []string

	// CheckOrigin decides whether to accept a request's Origin header. If
	// nil, AllowedOrigins is consulted; if that is also empty, all
	// origins (including absent ones) are accepted.
	CheckOrigin func(r *http.Request) bool

	// AllowedOrigins is consulted by the default CheckOrigin when
	// CheckOrigin is nil.
	AllowedOrigins []string
}

func (o *ServerOptions) readTimeout() time.Duration {
	if o.ReadTimeout > 0 {
		return o.ReadTimeout
	}
	return 180 * time.Second
}

func (o *ServerOptions) rateLimit() (rate.Limit, int) {
	if o.RateLimit > 0 && o.RateBurst > 0 {
		return o.RateLimit, o.RateBurst
	}
	return rate.Limit(10), 10
}

func (o *ServerOptions) checkOrigin(r *http.Request) bool {
	if o.CheckOrigin != nil {
		return o.CheckOrigin(r)
	}
	origin := r.Header.Get("Origin")
	if origin == "" || len(o.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range o.AllowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}

// Server upgrades incoming HTTP requests to WebSocket connections and
// dispatches each to a registered handler on its own goroutine. It is an
// explicit value rather than package-level state, so a process may run
// more than one independently configured server.
type Server struct {
	opts    ServerOptions
	limiter *peerLimiter

	handler      Handler
	handlerFull  HandlerWithRequest

	// Diagnostics receives handler panics, recovered per connection,
	// without ever blocking the accept path: sends are non-blocking, and an
	// error is dropped when the channel's buffer (16, as made by NewServer)
	// is full.
	Diagnostics chan error
}

// NewServer constructs a Server with the given options. Call Handle or
// HandleWithRequest before serving any requests.
func NewServer(opts ServerOptions) *Server {
	r, burst := opts.rateLimit()
	return &Server{
		opts:        opts,
		limiter:     newPeerLimiter(r, burst),
		Diagnostics: make(chan error, 16),
	}
}

// Handle registers h as the connection handler. Mutually exclusive with
// HandleWithRequest; the one registered last wins.
func (s *Server) Handle(h Handler) {
	s.handler = h
	s.handlerFull = nil
}

// HandleWithRequest registers h as the connection handler, with access to
// the upgrade request's headers.
func (s *Server) HandleWithRequest(h HandlerWithRequest) {
	s.handlerFull = h
	s.handler = nil
}

// ServeHTTP implements http.Handler, performing the upgrade handshake and
// then handing the resulting *Conn to the registered handler on a new
// goroutine.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	key, requested, err := checkUpgrade(r)
	if err != nil {
		w.Header().Set("Sec-WebSocket-Version", "13")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.opts.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	subprotocol := selectSubprotocol(requested, s.opts.Subprotocols)
	if subprotocol == "" && len(requested) > 0 && len(s.opts.Subprotocols) > 0 {
		w.Header().Set("Sec-WebSocket-Protocol", strings.Join(requested, ", "))
		http.Error(w, "no matching subprotocol", http.StatusBadRequest)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "webserver doesn't support hijacking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", computeAcceptKey(key))
	if subprotocol != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subprotocol)
	}
	w.WriteHeader(http.StatusSwitchingProtocols)

	nc, _, err := hj.Hijack()
	if err != nil {
		Log.Printf("hijack failed for %s: %v", r.RemoteAddr, err)
		return
	}
	// Hijack has already flushed the 101 status line and headers (including
	// the blank line that ends them), so nothing more is written here.

	c := newConn(nc, RoleServer, subprotocol, s.opts.readTimeout(), s.opts.ChunkSize)
	header := r.Header.Clone()
	go s.serveConn(c, header)
}

func (s *Server) serveConn(c *Conn, header http.Header) {
	defer func() {
		if rec := recover(); rec != nil {
			s.diagnose(fmt.Errorf("ws: handler panic: %v", rec))
			c.forceClose(StatusInternalError, "")
		}
	}()
	switch {
	case s.handlerFull != nil:
		s.handlerFull(header, c)
	case s.handler != nil:
		s.handler(c)
	}
	if c.currentState() != StateClosed {
		c.Close()
	}
}

func (s *Server) diagnose(err error) {
	select {
	case s.Diagnostics <- err:
	default:
	}
}

// listener is the subset of net.Listener a Server needs; kept narrow so
// tests can supply a fake.
type listener interface {
	Close() error
}

// Stop closes ln, causing a concurrently-running http.Server.Serve(ln) (or
// ListenAndServe) call on the same listener to return. It replaces the
// ad hoc control-channel convention with an explicit method, matching the
// rest of this package's explicit-server-state design.
func (s *Server) Stop(ln listener) error {
	return ln.Close()
}
