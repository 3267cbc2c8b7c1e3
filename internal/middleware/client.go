package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

// 1. Context Keys (exported so the chat handler can read them)
type contextKey string

const (
	SourceIPKey contextKey = "source_ip"
)

// 2. The Middleware Structure
type ClientContext struct {
	// TrustForwarded reads X-Forwarded-For. Only enable behind a proxy or load balancer.
	TrustForwarded bool
}

func NewClientContext(trustForwarded bool) *ClientContext {
	return &ClientContext{TrustForwarded: trustForwarded}
}

// 3. The actual Handler
func (cc *ClientContext) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ""
		if cc.TrustForwarded {
			ip = ForwardedSourceIP(r.Header.Get("X-Forwarded-For"))
		}
		if ip == "" {
			ip = remoteHost(r.RemoteAddr)
		}

		ctx := context.WithValue(r.Context(), SourceIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SourceIP returns the address stored by ClientContext, or "".
func SourceIP(ctx context.Context) string {
	ip, _ := ctx.Value(SourceIPKey).(string)
	return ip
}

// ForwardedSourceIP extracts the client address from the first
// X-Forwarded-For entry, dropping an IPv4 port or the port after a
// bracketed IPv6 address.
func ForwardedSourceIP(header string) string {
	ip := strings.TrimSpace(strings.Split(header, ",")[0])
	if ip == "" {
		return ""
	}

	// ipv4:port
	if i := strings.LastIndex(ip, ":"); i != -1 && strings.Index(ip, ":") == i {
		return ip[:i]
	}

	// [ipv6]:port
	if strings.HasPrefix(ip, "[") {
		if i := strings.Index(ip, "]:"); i != -1 {
			return ip[:i+1]
		}
	}

	return ip
}

func remoteHost(addr string) string {
	if addr == "" {
		return ""
	}
	return ForwardedSourceIP(addr)
}
