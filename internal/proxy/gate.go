package proxy

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

// CORSPolicy is the allowed-origin configuration for the gate.
type CORSPolicy struct {
	AllowAll bool
	Origins  map[string]bool
}

// NewCORSPolicy builds a policy from the configured origin list. A list of
// exactly "*" allows every origin.
func NewCORSPolicy(origins []string) *CORSPolicy {
	p := &CORSPolicy{Origins: make(map[string]bool)}
	for _, o := range origins {
		if o == "*" {
			p.AllowAll = true
			continue
		}
		p.Origins[o] = true
	}
	return p
}

// Apply sets the CORS response headers for a matching Origin. Matching a
// specific origin also appends Origin to Vary so caches keep responses
// separated per origin.
func (p *CORSPolicy) Apply(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	switch {
	case p.AllowAll:
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case p.Origins[origin]:
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
}

// Preflight answers an OPTIONS request.
func (p *CORSPolicy) Preflight(w http.ResponseWriter, r *http.Request) {
	p.Apply(w, r)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key, anthropic-version")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// IPAllowlist restricts inbound requests by normalized client IP. Empty or
// wildcard configuration disables the check.
type IPAllowlist struct {
	allowed map[string]bool
}

// NewIPAllowlist builds an allowlist; nil means disabled.
func NewIPAllowlist(ips []string) *IPAllowlist {
	if len(ips) == 0 {
		return nil
	}
	allowed := make(map[string]bool)
	for _, ip := range ips {
		if ip == "*" {
			return nil
		}
		allowed[normalizeIP(ip)] = true
	}
	return &IPAllowlist{allowed: allowed}
}

// Allows reports whether the request's client IP is permitted. A nil
// allowlist permits everything.
func (l *IPAllowlist) Allows(r *http.Request) bool {
	if l == nil {
		return true
	}
	return l.allowed[clientIP(r)]
}

// clientIP extracts the caller's address from proxy headers, falling back
// to the socket peer.
func clientIP(r *http.Request) string {
	for _, header := range []string{"cf-connecting-ip", "x-real-ip"} {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return normalizeIP(v)
		}
	}
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return normalizeIP(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalizeIP(host)
}

// normalizeIP strips a bracketed-IPv6 port, the IPv4-mapped prefix, and any
// zone, and lowercases the rest.
func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if strings.HasPrefix(ip, "[") {
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		} else {
			ip = strings.Trim(ip, "[]")
		}
	}
	ip = strings.TrimPrefix(ip, "::ffff:")
	if i := strings.IndexByte(ip, '%'); i >= 0 {
		ip = ip[:i]
	}
	return strings.ToLower(ip)
}

// errBodyTooLarge marks a request body over the configured limit.
var errBodyTooLarge = errors.New("request body too large")

// readBody reads the request body under the byte limit. Oversized
// Content-Length fails before reading; a streamed body is cut off as soon
// as the limit is crossed.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.ContentLength > limit {
		return nil, errBodyTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}
