package main

import (
	"context"
	"net/http"
	"time"

	"bookmarket/internal/httpx"
	"bookmarket/internal/listing"
	"bookmarket/internal/profile"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type routes struct {
	listings  *listing.HTTPHandler
	profiles  *profile.HTTPHandler
	db        pinger
	jwtSecret string
}

func (rt routes) handler() http.Handler {
	mux := http.NewServeMux()
	auth := httpx.AuthMiddleware(rt.jwtSecret)
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := rt.db.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("GET /v1/listings", rt.listings.List)
	mux.HandleFunc("GET /v1/listings/{id}", rt.listings.Get)
	mux.Handle("POST /v1/listings", protected(rt.listings.Publish))
	mux.Handle("DELETE /v1/listings/{id}", protected(rt.listings.Delete))
	mux.Handle("GET /v1/me/listings", protected(rt.listings.Mine))
	mux.Handle("GET /v1/profiles/listings", protected(rt.listings.ByProfileEmail))
	mux.Handle("GET /v1/me/profile", protected(rt.profiles.GetOwnProfile))

	return mux
}
