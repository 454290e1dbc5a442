package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

// gzipResponseWriter wraps http.ResponseWriter to compress response
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// uncompressedPaths lists endpoints left uncompressed: health and metrics
// scrapers are polled far more often than the payload is worth gzipping,
// and probes shouldn't have to negotiate an encoding.
var uncompressedPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// CompressionMiddleware applies gzip compression to responses
//
// Compresses response if:
//   - Client accepts gzip (Accept-Encoding: gzip header)
//   - The path isn't in uncompressedPaths
//
// Sets Content-Encoding: gzip header on compressed responses.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if client accepts gzip
		if uncompressedPaths[r.URL.Path] || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		// Create gzip writer
		gz := gzip.NewWriter(w)
		defer gz.Close()

		// Set content encoding header
		w.Header().Set("Content-Encoding", "gzip")

		// Wrap response writer
		gzw := gzipResponseWriter{Writer: gz, ResponseWriter: w}
		next.ServeHTTP(gzw, r)
	})
}
