package httptransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staygate/internal/credentials/models"
	dErrors "staygate/pkg/domain-errors"
	"staygate/pkg/platform/httputil"
)

// CredentialService defines the credential operations the handler exposes.
type CredentialService interface {
	Upload(ctx context.Context, hostID, ico string, bundle []byte, password string) (*models.Credential, error)
	Verify(ctx context.Context, hostID string) (*models.Credential, error)
	Delete(ctx context.Context, hostID string) error
}

// CredentialsHandler handles host credential endpoints.
type CredentialsHandler struct {
	svc    CredentialService
	logger *slog.Logger
}

// NewCredentialsHandler creates a credential Handler.
func NewCredentialsHandler(svc CredentialService, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{svc: svc, logger: logger}
}

// Register registers the credential routes with the chi router.
func (h *CredentialsHandler) Register(r chi.Router) {
	r.Route("/hosts/{hostID}/credentials", func(r chi.Router) {
		r.Post("/", h.handleUpload)
		r.Post("/verify", h.handleVerify)
		r.Delete("/", h.handleDelete)
	})
}

type uploadRequest struct {
	ICO      string `json:"ico"`
	Password string `json:"password"`
	// Bundle carries the uploaded PKCS#12 file base64-encoded.
	Bundle string `json:"bundle"`
}

type credentialResponse struct {
	HostID     string     `json:"host_id"`
	ICO        string     `json:"ico"`
	APISubject string     `json:"api_subject"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

func toCredentialResponse(cred *models.Credential) credentialResponse {
	return credentialResponse{
		HostID:     cred.HostID,
		ICO:        cred.ICO,
		APISubject: cred.APISubject,
		Verified:   cred.Verified,
		VerifiedAt: cred.VerifiedAt,
	}
}

func (h *CredentialsHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hostID := chi.URLParam(r, "hostID")

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	bundle, err := base64.StdEncoding.DecodeString(req.Bundle)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "bundle must be base64 encoded"))
		return
	}

	cred, err := h.svc.Upload(ctx, hostID, req.ICO, bundle, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "credential upload rejected",
			"host_id", hostID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCredentialResponse(cred))
}

func (h *CredentialsHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hostID := chi.URLParam(r, "hostID")

	cred, err := h.svc.Verify(ctx, hostID)
	if err != nil {
		h.logger.WarnContext(ctx, "credential verification failed",
			"host_id", hostID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(cred))
}

func (h *CredentialsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hostID := chi.URLParam(r, "hostID")

	if err := h.svc.Delete(ctx, hostID); err != nil {
		h.logger.WarnContext(ctx, "credential deletion failed",
			"host_id", hostID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
