package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"go.uber.org/zap"
)

type contextKey int

const adapterKey contextKey = iota

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Authorization")
		if key == "" {
			writeMessage(w, http.StatusUnauthorized, "API key missing")
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
			s.log.Warn("Rejected request with invalid API key", zap.String("path", r.URL.Path))
			writeMessage(w, http.StatusUnauthorized, "Invalid API key")

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) resolveDex(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dex := r.URL.Query().Get("dex")
		if dex == "" {
			writeMessage(w, http.StatusBadRequest, "DEX missing")
			return
		}

		adapter, err := s.router.Adapter(dex)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeUnsupportedDex) {
				writeMessage(w, http.StatusBadRequest, "Unsupported DEX")
				return
			}

			s.writeError(w, err)

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adapterKey, adapter)))
	})
}

func adapterFrom(r *http.Request) exchange.Adapter {
	adapter, _ := r.Context().Value(adapterKey).(exchange.Adapter)
	return adapter
}
