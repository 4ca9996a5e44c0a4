package logging

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sugar is the shared application logger. Initialize must be called once at
// startup before any other package logs.
var Sugar *zap.SugaredLogger = zap.NewNop().Sugar()

func Initialize() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	Sugar = logger.Sugar()
	return nil
}

type responseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *responseData
}

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.responseData.status = statusCode
}

// LoggingMiddleware logs every served request with its latency, status and
// response size.
func LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			responseData := &responseData{status: http.StatusOK}
			lw := loggingResponseWriter{
				ResponseWriter: w,
				responseData:   responseData,
			}

			next.ServeHTTP(&lw, r)

			Sugar.Infow("Served request",
				"uri", r.RequestURI,
				"method", r.Method,
				"status", responseData.status,
				"duration", time.Since(start),
				"size", responseData.size,
			)
		})
	}
}
