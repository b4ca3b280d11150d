package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// CacheControl lets browsers and proxies keep successful GET responses for
// maxAge. Error responses are never marked cacheable.
func CacheControl(maxAge time.Duration, immutable bool) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	if immutable {
		value += ", immutable"
	}
	return func(next http.Handler) http.Handler {
		if maxAge <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, value: value}, r)
		})
	}
}

type cacheControlWriter struct {
	http.ResponseWriter
	value       string
	wroteHeader bool
}

func (cw *cacheControlWriter) WriteHeader(code int) {
	if !cw.wroteHeader {
		cw.wroteHeader = true
		if code < http.StatusBadRequest && cw.Header().Get("Cache-Control") == "" {
			cw.Header().Set("Cache-Control", cw.value)
		}
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cacheControlWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}
