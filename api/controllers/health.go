package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/talrozen/courierdesk-backend/api/responses"
	"github.com/talrozen/courierdesk-backend/pkg/config"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
)

const envHeader = "X-CourierDesk-Env"

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired dependency. Nil pingers are treated as not
// configured and skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		ready := true
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				ready = false
				if logg != nil {
					logg.Error(ctx, "readiness check failed: "+name, err)
				}
				continue
			}
			checks[name] = "up"
		}

		status := http.StatusOK
		overall := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": overall,
			"checks": checks,
		})
	}
}
