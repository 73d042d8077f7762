package shared

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

var cpfPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

// ValidCPF checks the canonical formatted shape (000.000.000-00).
// Check-digit verification stays with the registration flow.
func ValidCPF(cpf string) bool {
	return cpfPattern.MatchString(cpf)
}

// ClientIP prefers X-Forwarded-For (first hop) over the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
