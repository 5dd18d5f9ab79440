package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const (
	clientIDKey contextKey = "client_id"
	clientIPKey contextKey = "client_ip"
)

// ClientIDHeader lets mobile clients identify themselves for rate limiting.
const ClientIDHeader = "X-Client-ID"

const maxClientIDLen = 64

func SetClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

func GetClientID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(clientIDKey).(string)
	return id, ok && id != ""
}

// GetClientIP returns the remote host recorded by ClientIdentity.
func GetClientIP(r *http.Request) (string, bool) {
	ip, ok := r.Context().Value(clientIPKey).(string)
	return ip, ok && ip != ""
}

// ClientIdentity stores a client ID and the remote host on the request
// context. A well-formed X-Client-ID header names the client; otherwise the
// remote IP does.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteHost(r.RemoteAddr)
		id := sanitizeClientID(r.Header.Get(ClientIDHeader))
		if id == "" {
			id = "ip:" + ip
		} else {
			id = "client:" + id
		}
		ctx := context.WithValue(SetClientID(r.Context(), id), clientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sanitizeClientID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxClientIDLen {
		return ""
	}
	for _, c := range raw {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return ""
		}
	}
	return raw
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
