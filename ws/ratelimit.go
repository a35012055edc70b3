package ws

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// peerLimiter rate-limits upgrade attempts per remote IP, so a single
// misbehaving or abusive peer cannot consume the accept loop. It is the
// server's only use of golang.org/x/time/rate.
type peerLimiter struct {
	r     rate.Limit
	burst int

	mu       sync.Mutex
	perPeer  map[string]*rate.Limiter
}

func newPeerLimiter(r rate.Limit, burst int) *peerLimiter {
	return &peerLimiter{r: r, burst: burst, perPeer: make(map[string]*rate.Limiter)}
}

func (p *peerLimiter) allow(req *http.Request) bool {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	p.mu.Lock()
	lim, ok := p.perPeer[host]
	if !ok {
		lim = rate.NewLimiter(p.r, p.burst)
		p.perPeer[host] = lim
	}
	p.mu.Unlock()
	return lim.Allow()
}
