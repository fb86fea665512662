package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tavern/cmd/internal/authstate"
	"tavern/cmd/internal/invite"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 16 << 10

// Handler returns the companion HTTP surface with middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log, a.metrics)
}

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && a.pool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if a.pool != nil {
			if err := pingPool(r.Context(), a.pool, dbReadyPing); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /v1/route", a.handleRoute)
	mux.HandleFunc("POST /v1/invites/open", a.handleOpenInvite)
	mux.HandleFunc("POST /v1/redirects/check", a.handleRedirectCheck)
	mux.HandleFunc("POST /v1/redirects/clear", a.handleRedirectClear)
}

type routeResponse struct {
	authstate.Routing
	Authenticated   bool `json:"authenticated"`
	ReducedSecurity bool `json:"reducedSecurity"`
}

func (a *App) handleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, routeResponse{
		Routing:         a.manager.GetRoutingDecision(ctx),
		Authenticated:   a.manager.IsAuthenticated(ctx),
		ReducedSecurity: a.ReducedSecurity(),
	})
}

type openInviteRequest struct {
	Token     string `json:"token"`
	WorldName string `json:"worldName"`
}

func (a *App) handleOpenInvite(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r)
	if blocked, retry := a.inviteThrottle.Blocked(client); blocked {
		a.log.Warn("http.invite_open.throttled", "remote", client)
		writeRateLimited(w, retry)
		return
	}

	var req openInviteRequest
	if !readJSON(w, r, &req) {
		return
	}
	out := a.manager.OpenInvite(r.Context(), req.Token, req.WorldName)
	if out.Redemption != nil && out.Redemption.Reason == invite.ReasonInvalidInvite {
		a.inviteThrottle.Fail(client)
	}
	writeJSON(w, http.StatusOK, out)
}

type redirectRequest struct {
	Route string `json:"route"`
}

type redirectResponse struct {
	Allowed bool `json:"allowed"`
}

func (a *App) handleRedirectCheck(w http.ResponseWriter, r *http.Request) {
	var req redirectRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Route == "" {
		http.Error(w, "route is required", http.StatusBadRequest)
		return
	}
	allowed := a.manager.NavigateTo(r.Context(), authstate.Decision(req.Route))
	writeJSON(w, http.StatusOK, redirectResponse{Allowed: allowed})
}

func (a *App) handleRedirectClear(w http.ResponseWriter, r *http.Request) {
	a.manager.ForceAllowRedirects(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
