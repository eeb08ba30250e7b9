package clientip

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Platform names the deployment target in front of this service. Each
// platform injects the real client address through different proxy headers,
// and only the headers that platform controls can be trusted.
type Platform string

const (
	PlatformVercel      Platform = "vercel"
	PlatformCloudflare  Platform = "cloudflare"
	PlatformDevelopment Platform = "development"
)

// trustedHeaders is checked in order; the first header carrying a parseable
// address wins. RemoteAddr is always the final fallback.
var trustedHeaders = map[Platform][]string{
	PlatformVercel:      {"X-Vercel-Forwarded-For", "X-Forwarded-For", "X-Real-IP"},
	PlatformCloudflare:  {"CF-Connecting-IP", "X-Forwarded-For"},
	PlatformDevelopment: {"X-Forwarded-For", "X-Real-IP"},
}

// ParsePlatform normalizes the DEPLOYMENT_PLATFORM value, defaulting to
// development for anything unknown.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vercel":
		return PlatformVercel
	case "cloudflare":
		return PlatformCloudflare
	default:
		return PlatformDevelopment
	}
}

// FromRequest resolves the client IP for the given platform. Behind a real
// proxy (vercel, cloudflare) header entries carrying private or loopback
// addresses are internal hops, never the client, so they are skipped there.
func FromRequest(r *http.Request, platform Platform) string {
	headers, ok := trustedHeaders[platform]
	if !ok {
		headers = trustedHeaders[PlatformDevelopment]
	}
	publicOnly := platform == PlatformVercel || platform == PlatformCloudflare

	for _, h := range headers {
		raw := r.Header.Get(h)
		if raw == "" {
			continue
		}
		// X-Forwarded-For may hold a chain; the client is the first hop.
		for _, part := range strings.Split(raw, ",") {
			ip := parseAddr(part)
			if ip == nil {
				continue
			}
			if publicOnly && !isPublic(ip) {
				continue
			}
			return ip.String()
		}
	}

	if ip := parseAddr(r.RemoteAddr); ip != nil {
		return ip.String()
	}
	return ""
}

// parseAddr strips an optional port and validates the address.
func parseAddr(raw string) net.IP {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]") // bare IPv6 in brackets
	return net.ParseIP(s)
}

func isPublic(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
}

type ctxKey struct{}

// Middleware resolves the client IP once per request and stores it in the
// request context for the rate limiter and handlers.
func Middleware(platform Platform) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := FromRequest(r, platform)
			ctx := context.WithValue(r.Context(), ctxKey{}, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the IP stored by Middleware, or "" when absent.
func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKey{}).(string)
	return ip
}
