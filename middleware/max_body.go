package middleware

import (
	"net/http"
	"os"
	"strconv"
)

// Receipt uploads are multipart and may carry a scanned document; everything
// else on the API is small JSON. The cap sits above the 10 MiB the receipt
// handler accepts so the limiter never truncates a valid upload.
const defaultMaxBodyBytes = 12 << 20

// BodyLimitMiddleware caps how much of a request body any handler can read.
// MAX_REQUEST_BODY_BYTES overrides the default. Reads past the cap make the
// body reader fail, which surfaces as a 400 from the JSON decoders and a
// parse error from multipart.
func BodyLimitMiddleware(next http.Handler) http.Handler {
	limit := int64(defaultMaxBodyBytes)
	if s := os.Getenv("MAX_REQUEST_BODY_BYTES"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 {
			limit = v
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
