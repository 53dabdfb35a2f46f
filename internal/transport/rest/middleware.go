package rest

import (
	"log/slog"
	"net/http"
	"time"

	"hardcover_rss/utils"

	"github.com/google/uuid"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rqID := r.Header.Get("X-Request-Id")
		if rqID == "" {
			rqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", rqID)
		next.ServeHTTP(w, r.WithContext(utils.CtxWithRequestID(r.Context(), rqID)))
	})
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info(
			"request handled",
			slog.String("rqID", utils.GetRequestIDFromCtx(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)),
		)
	})
}
