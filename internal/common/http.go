package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
		return strings.TrimSpace(ip)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// FormValues flattens the request form into a plain string map, keeping the
// first value for each key. Callback payloads from the payment processor are
// single-valued.
func FormValues(r *http.Request) map[string]string {
	if r == nil {
		return nil
	}
	_ = r.ParseForm()
	out := make(map[string]string, len(r.Form))
	for key, values := range r.Form {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}
