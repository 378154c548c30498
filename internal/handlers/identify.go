package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"contactlink/internal/middleware"
	"contactlink/internal/models"
)

const maxBodyBytes = 1 << 20

// identifier is the reconciliation operation the handler serves.
type identifier interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error)
}

// IdentifyHandler handles the identify endpoints
type IdentifyHandler struct {
	service identifier
	log     *slog.Logger
}

// NewIdentifyHandler creates a new identify handler
func NewIdentifyHandler(service identifier, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{
		service: service,
		log:     logger.With("handler", "identify"),
	}
}

// Handle processes the identify request
func (h *IdentifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req models.IdentifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.log.DebugContext(r.Context(), "invalid identify body",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromCtx(r.Context())),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	response, err := h.service.Identify(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response)
	case errors.Is(err, models.ErrNoContactInfo):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the reply.
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.log.ErrorContext(r.Context(), "identify request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromCtx(r.Context())),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal server error",
			Message: "failed to identify contact",
		})
	}
}

// Welcome answers GET /api with a short greeting.
func Welcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Welcome to the Contact Identification API"))
}
