package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// GzipMiddleware распаковывает тело запроса с Content-Encoding: gzip
// и ограничивает размер распакованного тела maxBytes байтами (0 - без ограничения)
func GzipMiddleware(logger *slog.Logger, maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}

			if !strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				logger.Warn("Invalid gzip body", "error", err)
				http.Error(w, "Bad Request: invalid gzip body", http.StatusBadRequest)
				return
			}
			defer zr.Close()

			var body io.Reader = zr
			if maxBytes > 0 {
				body = &limitedReader{r: zr, left: maxBytes}
			}

			r.Body = io.NopCloser(body)
			r.Header.Del("Content-Encoding")
			r.ContentLength = -1

			next.ServeHTTP(w, r)
		})
	}
}

// errBodyTooLarge распакованное тело больше лимита
var errBodyTooLarge = errors.New("request body too large")

type limitedReader struct {
	r    io.Reader
	left int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.left <= 0 {
		// проверяем, что данных действительно больше нет
		var probe [1]byte
		if n, _ := l.r.Read(probe[:]); n > 0 {
			return 0, errBodyTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.left {
		p = p[:l.left]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	return n, err
}
