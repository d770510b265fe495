// File: netio/resolver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint resolution. Literal addresses complete inline; hostnames are
// looked up on helper goroutines and the results are handed back to the
// loop through an async handle.

package netio

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/reactor"
)

// LookupFunc returns the addresses of host.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

func defaultLookup(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// ResolverRequest is the state of one resolution, embedded in its Task.
type ResolverRequest struct {
	Endpoint *address.EndpointURI
	Addr     address.SocketAddr
	Success  bool

	owner   *Task
	err     error
	port    int
	started time.Time
}

func (r *ResolverRequest) reset() {
	r.Addr.Clear()
	r.Success = false
	r.err = nil
	r.port = 0
	r.started = time.Time{}
}

func (r *ResolverRequest) fail(code api.ErrorCode, msg string, cause error) {
	e := api.NewError(code, msg).WithContext("endpoint", r.Endpoint.String())
	if cause != nil {
		e = e.WithCause(cause)
	}
	r.err = e
	r.Success = false
}

type lookupResult struct {
	req   *ResolverRequest
	addrs []netip.Addr
	err   error
}

type resolver struct {
	env     *portEnv
	lookup  LookupFunc
	timeout time.Duration
	handler func(req *ResolverRequest)
	async   *reactor.Async

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	results *queue.Queue

	// loop only
	inFlight int
}

func newResolver(env *portEnv, lookup LookupFunc, timeout time.Duration, handler func(req *ResolverRequest)) (*resolver, error) {
	r := &resolver{
		env:     env,
		lookup:  lookup,
		timeout: timeout,
		handler: handler,
		results: queue.New(),
	}
	async, err := env.loop.NewAsync(r.drain)
	if err != nil {
		return nil, err
	}
	r.async = async
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r, nil
}

// resolve starts req. It returns true when req completed inline; otherwise
// the handler runs later on the loop.
func (r *resolver) resolve(req *ResolverRequest) bool {
	req.started = time.Now()
	host := req.Endpoint.Hostname()

	port, ok := req.Endpoint.PortOrDefault()
	if !ok {
		req.fail(api.ErrCodeInvalidArgument, "endpoint has no port", nil)
		return true
	}
	req.port = port

	if strings.HasPrefix(req.Endpoint.Host(), "[") {
		ip, err := netip.ParseAddr(host)
		if err != nil || !ip.Is6() || ip.Zone() != "" {
			req.fail(api.ErrCodeInvalidArgument, "malformed IPv6 literal", err)
			return true
		}
		r.complete(req, ip)
		return true
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		r.complete(req, ip)
		return true
	}
	if isNumericHost(host) {
		req.fail(api.ErrCodeInvalidArgument, "malformed IPv4 literal", nil)
		return true
	}
	if !isValidHostname(host) {
		req.fail(api.ErrCodeInvalidArgument, "invalid hostname", nil)
		return true
	}
	if r.ctx.Err() != nil {
		req.fail(api.ErrCodeResolveFailed, "resolver is stopping", api.ErrResolveCancelled)
		return true
	}

	r.inFlight++
	go r.run(req, host)
	return false
}

func (r *resolver) run(req *ResolverRequest, host string) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	addrs, err := r.lookup(ctx, host)
	if err == nil && r.ctx.Err() != nil {
		err = api.ErrResolveCancelled
	}
	cancel()

	r.mu.Lock()
	r.results.Add(lookupResult{req: req, addrs: addrs, err: err})
	r.mu.Unlock()
	_ = r.async.Send()
}

func (r *resolver) drain() {
	for {
		r.mu.Lock()
		if r.results.Length() == 0 {
			r.mu.Unlock()
			return
		}
		res := r.results.Remove().(lookupResult)
		r.mu.Unlock()

		r.inFlight--
		r.finish(res)
	}
}

func (r *resolver) finish(res lookupResult) {
	req := res.req
	switch {
	case res.err != nil:
		req.fail(api.ErrCodeResolveFailed, "lookup failed", res.err)
	case len(res.addrs) == 0:
		req.fail(api.ErrCodeNotFound, "host has no addresses", nil)
	default:
		r.complete(req, res.addrs[0])
	}
	if !req.Success {
		r.env.log.Debug().
			Str("endpoint", req.Endpoint.String()).
			Err(req.err).
			Log("resolve failed")
	}
	r.handler(req)
}

func (r *resolver) complete(req *ResolverRequest, ip netip.Addr) {
	ip = ip.Unmap()
	if !ip.IsValid() {
		req.fail(api.ErrCodeResolveFailed, "unusable address", nil)
		return
	}
	req.Addr = address.FromAddrPort(netip.AddrPortFrom(ip, uint16(req.port)))
	req.Success = true
	r.env.metrics.ResolveObserved(time.Since(req.started))
}

// stop cancels lookups still running; their requests fail.
func (r *resolver) stop() {
	r.cancel()
}

func (r *resolver) close(done func()) {
	r.cancel()
	if r.async.IsClosed() {
		r.env.loop.Post(done)
		return
	}
	_ = r.async.Close(done)
}

// isNumericHost reports hosts that can only be meant as IPv4 literals.
func isNumericHost(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func isValidHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			default:
				return false
			}
		}
	}
	return true
}
