package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staygate/internal/platform/middleware"
	"staygate/pkg/platform/httputil"
)

// NewRouter wires the operational endpoints. The full guest CRUD and user
// auth surface lives in the surrounding application; this service exposes
// only the credential and submission operations it owns.
func NewRouter(logger *slog.Logger, creds *CredentialsHandler, subs *SubmissionsHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	creds.Register(r)
	subs.Register(r)
	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
