package middleware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"session-auth/internal/event"
)

const requestIDHeader = "X-Request-ID"

// requestInfo travels in the request context so inner middleware can report
// back to the access log. The gate records the user it authenticated.
type requestInfo struct {
	id     string
	userID atomic.Int64
}

const requestInfoKey contextKey = "request_info"

func infoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info
}

// RequestIDFromContext returns the id assigned by Logging, or "".
func RequestIDFromContext(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.id
	}
	return ""
}

func noteUser(ctx context.Context, userID int64) {
	if info := infoFrom(ctx); info != nil {
		info.userID.Store(userID)
	}
}

type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{id: sanitizeRequestID(r.Header.Get(requestIDHeader))}
		w.Header().Set(requestIDHeader, info.id)

		clientIP := clientIPOf(r)
		ctx := context.WithValue(r.Context(), requestInfoKey, info)
		ctx = event.WithClientIP(ctx, clientIP)

		started := time.Now()
		recorder := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		attrs := []slog.Attr{
			slog.String("request_id", info.id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", recorder.status),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			slog.String("client_ip", clientIP),
		}
		if userID := info.userID.Load(); userID > 0 {
			attrs = append(attrs, slog.Int64("user_id", userID))
		}

		if recorder.status >= 400 {
			if r.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", maskQuery(r.URL.RawQuery)))
			}
			var parsed errorBody
			if json.Unmarshal(recorder.body.Bytes(), &parsed) == nil && parsed.Error != nil {
				attrs = append(attrs, slog.String("error_code", parsed.Error.Code))
				if parsed.Error.Details != "" {
					attrs = append(attrs, slog.String("error_details", parsed.Error.Details))
				}
			}
		}

		level := slog.LevelInfo
		switch {
		case recorder.status >= 500:
			level = slog.LevelError
		case recorder.status >= 400:
			level = slog.LevelWarn
		}
		slog.LogAttrs(ctx, level, "request", attrs...)
	})
}

// sanitizeRequestID keeps a caller-supplied id only when it is short and
// printable; anything else is replaced so it cannot forge log lines.
func sanitizeRequestID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 64 {
		return uuid.NewString()
	}
	for _, c := range raw {
		if c < 0x21 || c > 0x7e {
			return uuid.NewString()
		}
	}
	return raw
}

var secretParams = map[string]struct{}{
	"code":          {},
	"state":         {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"link_token":    {},
}

// maskQuery redacts OAuth codes and tokens before a query string is logged.
func maskQuery(raw string) string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparseable]"
	}
	for key := range values {
		if _, secret := secretParams[strings.ToLower(key)]; secret {
			values[key] = []string{"***"}
		}
	}
	return values.Encode()
}

// errorBodyLimit caps how much of an error response is kept for the log line.
const errorBodyLimit = 4 << 10

type responseWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.status = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.status >= 400 && rw.body.Len() < errorBodyLimit {
		rw.body.Write(b[:min(len(b), errorBodyLimit-rw.body.Len())])
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
