package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"staygate/internal/submission/models"
	dErrors "staygate/pkg/domain-errors"
	"staygate/pkg/platform/httputil"
)

// SubmissionService defines the submission operations the handler exposes.
type SubmissionService interface {
	Submit(ctx context.Context, guestID uuid.UUID) (*models.Guest, error)
	Confirm(ctx context.Context, guestID uuid.UUID, govSubmissionID string) (*models.Guest, error)
}

// SubmissionsHandler handles guest submission endpoints.
type SubmissionsHandler struct {
	svc    SubmissionService
	logger *slog.Logger
}

// NewSubmissionsHandler creates a submissions Handler.
func NewSubmissionsHandler(svc SubmissionService, logger *slog.Logger) *SubmissionsHandler {
	return &SubmissionsHandler{svc: svc, logger: logger}
}

// Register registers the submission routes with the chi router.
func (h *SubmissionsHandler) Register(r chi.Router) {
	r.Post("/guests/{guestID}/submit", h.handleSubmit)
	r.Post("/guests/{guestID}/submission/confirm", h.handleConfirm)
}

type confirmRequest struct {
	GovSubmissionID string `json:"gov_submission_id"`
}

type guestResponse struct {
	ID              uuid.UUID     `json:"id"`
	HostID          string        `json:"host_id"`
	Status          models.Status `json:"status"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	GovSubmissionID *string       `json:"gov_submission_id,omitempty"`
}

func toGuestResponse(guest *models.Guest) guestResponse {
	return guestResponse{
		ID:              guest.ID,
		HostID:          guest.HostID,
		Status:          guest.Status,
		SubmittedAt:     guest.SubmittedAt,
		GovSubmissionID: guest.GovSubmissionID,
	}
}

func (h *SubmissionsHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	guestID, err := uuid.Parse(chi.URLParam(r, "guestID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid guest id"))
		return
	}

	guest, err := h.svc.Submit(ctx, guestID)
	if err != nil {
		h.logger.WarnContext(ctx, "guest submission rejected",
			"guest_id", guestID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGuestResponse(guest))
}

func (h *SubmissionsHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	guestID, err := uuid.Parse(chi.URLParam(r, "guestID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid guest id"))
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.GovSubmissionID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "gov_submission_id is required"))
		return
	}

	guest, err := h.svc.Confirm(ctx, guestID, req.GovSubmissionID)
	if err != nil {
		h.logger.WarnContext(ctx, "submission confirmation rejected",
			"guest_id", guestID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGuestResponse(guest))
}
