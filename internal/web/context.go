package web

import (
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/orcado/internal/core"
)

// OperatorHeader names the user an API client acts for.
const OperatorHeader = "X-Operator"

// withOperator attaches the caller's identity to the request context so
// audit records can name who acted. RemoteAddr has already been rewritten by
// TrustedRealIP.
func withOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := core.Operator{
			User:      strings.TrimSpace(r.Header.Get(OperatorHeader)),
			IPAddress: clientIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(core.ContextWithOperator(r.Context(), op)))
	})
}

// operatorOverride replaces the operator with a form-supplied name, if any.
func operatorOverride(r *http.Request, name string) *http.Request {
	name = strings.TrimSpace(name)
	if name == "" {
		return r
	}
	op, _ := core.OperatorFromContext(r.Context())
	op.User = name
	return r.WithContext(core.ContextWithOperator(r.Context(), op))
}

func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
