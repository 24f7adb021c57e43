package middleware

import (
	"net/http"
	"sync/atomic"
)

// RequestStats counts requests by outcome for the /metrics endpoint.
type RequestStats struct {
	total        atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
}

type RequestSnapshot struct {
	Total        int64 `json:"request_count"`
	ClientErrors int64 `json:"client_error_count"`
	ServerErrors int64 `json:"server_error_count"`
}

func (s *RequestStats) Snapshot() RequestSnapshot {
	return RequestSnapshot{
		Total:        s.total.Load(),
		ClientErrors: s.clientErrors.Load(),
		ServerErrors: s.serverErrors.Load(),
	}
}

// Middleware counts every request and classifies 4xx and 5xx responses.
func (s *RequestStats) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.total.Add(1)
		rw := record(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.status >= 500:
			s.serverErrors.Add(1)
		case rw.status >= 400:
			s.clientErrors.Add(1)
		}
	})
}
