// Package handler contains the HTTP handlers of the huduma API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hudumahub/huduma-system/internal/catalog"
	"github.com/hudumahub/huduma-system/internal/middleware"
	"github.com/hudumahub/huduma-system/internal/model"
	"github.com/hudumahub/huduma-system/internal/mpesa"
	"github.com/hudumahub/huduma-system/internal/repository"
	"github.com/hudumahub/huduma-system/internal/service"
)

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	ListServices(ctx context.Context) ([]model.ServiceDefinition, error)
	GetServiceBySlug(ctx context.Context, slug string) (*model.ServiceDefinition, error)
	SubmitApplication(ctx context.Context, sub service.Submission) (*service.SubmissionResult, error)
	ProcessPaymentCallback(ctx context.Context, cb *mpesa.StkCallback) error
	ListApplications(ctx context.Context) ([]model.Application, error)
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	UpdateApplication(ctx context.Context, id string, status *model.ApplicationStatus, notes *string) error
	UpsertService(ctx context.Context, def model.ServiceDefinition) (*model.ServiceDefinition, error)
	PatchService(ctx context.Context, id string, patch service.ServicePatch) (*model.ServiceDefinition, error)
	DeleteService(ctx context.Context, id string) error
	SeedDefaults(ctx context.Context) (int, error)
}

// Handler implements the HTTP handlers of the huduma API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Success: false, Message: message})
}

// ListServices returns the merged catalog.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, services)
}

// GetService returns one catalog entry by slug.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	def, err := h.service.GetServiceBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "service not found")
			return
		}
		h.logger.Error("get service error", zap.Error(err), zap.String("slug", slug))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

type applicantData struct {
	FullName     string            `json:"fullName"`
	PhoneNumber  string            `json:"phoneNumber"`
	IDNumber     string            `json:"idNumber"`
	Notes        string            `json:"notes,omitempty"`
	Documents    []string          `json:"documents,omitempty"`
	CustomFields map[string]string `json:"customFields"`
}

type submitRequest struct {
	ServiceID     string        `json:"serviceId"`
	ApplicantData applicantData `json:"applicantData"`
}

type submitResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ApplicationID string `json:"applicationId,omitempty"`
	AmountDue     int64  `json:"amountDue,omitempty"`
}

// SubmitApplication accepts an applicant submission and triggers the
// payment hand-off. Payment failures are reported in the message, not in
// the HTTP status: the application exists either way.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The record is always attributed to the authenticated user; any
	// user id in the body is ignored.
	result, err := h.service.SubmitApplication(r.Context(), service.Submission{
		ServiceSlug: req.ServiceID,
		UserID:      userID,
		Applicant: model.Applicant{
			FullName:         req.ApplicantData.FullName,
			PhoneNumber:      req.ApplicantData.PhoneNumber,
			NationalIDNumber: req.ApplicantData.IDNumber,
		},
		Notes:     req.ApplicantData.Notes,
		RawValues: req.ApplicantData.CustomFields,
		Documents: req.ApplicantData.Documents,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeError(w, http.StatusUnprocessableEntity, verr.Error())
		case errors.Is(err, catalog.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "service not found")
		default:
			h.logger.Error("submit application error", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, submitResponse{
		Success:       true,
		Message:       result.PaymentMessage,
		ApplicationID: result.ApplicationID,
		AmountDue:     result.AmountDue,
	})
}

type callbackAck struct {
	Result string `json:"result"`
}

// MpesaCallback receives the asynchronous payment result from the
// gateway. The gateway is always acknowledged with 200 so it stops
// retrying; reconciliation problems are an internal matter.
func (h *Handler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusOK, callbackAck{Result: "unreadable payload"})
		return
	}

	cb, err := mpesa.ParseCallback(body)
	if err != nil {
		h.logger.Warn("invalid callback payload", zap.Error(err))
		h.writeJSON(w, http.StatusOK, callbackAck{Result: "invalid payload"})
		return
	}

	if err := h.service.ProcessPaymentCallback(r.Context(), cb); err != nil {
		h.logger.Error("process callback error",
			zap.Error(err),
			zap.String("checkoutRequestID", cb.CheckoutRequestID))
	}

	h.writeJSON(w, http.StatusOK, callbackAck{Result: "ok"})
}

// ListApplications returns the operator view of all applications.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.ListApplications(r.Context())
	if err != nil {
		h.logger.Error("list applications error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if apps == nil {
		apps = []model.Application{}
	}
	h.writeJSON(w, http.StatusOK, apps)
}

// GetApplication returns one application by id.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	app, err := h.service.GetApplication(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "application not found")
			return
		}
		h.logger.Error("get application error", zap.Error(err), zap.String("id", id))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

type updateApplicationRequest struct {
	Status *model.ApplicationStatus `json:"status,omitempty"`
	Notes  *string                  `json:"adminNotes,omitempty"`
}

// UpdateApplication applies an operator override of status and/or notes.
func (h *Handler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.UpdateApplication(r.Context(), id, req.Status, req.Notes)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeError(w, http.StatusUnprocessableEntity, verr.Error())
		case errors.Is(err, repository.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "application not found")
		default:
			h.logger.Error("update application error", zap.Error(err), zap.String("id", id))
			h.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UpsertService creates or replaces a catalog entry.
func (h *Handler) UpsertService(w http.ResponseWriter, r *http.Request) {
	var def model.ServiceDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.service.UpsertService(r.Context(), def)
	if err != nil {
		h.writeServiceWriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, saved)
}

type servicePatchRequest struct {
	Title        *string                  `json:"title,omitempty"`
	Slug         *string                  `json:"slug,omitempty"`
	Category     *string                  `json:"category,omitempty"`
	Description  *string                  `json:"description,omitempty"`
	BaseCost     *int64                   `json:"baseCost,omitempty"`
	PlatformFee  *int64                   `json:"platformFee,omitempty"`
	Requirements *[]string                `json:"requirements,omitempty"`
	Turnaround   *string                  `json:"turnaround,omitempty"`
	FieldSchema  *[]model.FieldDescriptor `json:"formFields,omitempty"`
}

// UpdateService applies a partial edit to a catalog entry. Fields absent
// from the body stay unchanged.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req servicePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.service.PatchService(r.Context(), id, service.ServicePatch{
		Title:        req.Title,
		Slug:         req.Slug,
		Category:     req.Category,
		Description:  req.Description,
		BaseCost:     req.BaseCost,
		PlatformFee:  req.PlatformFee,
		Requirements: req.Requirements,
		Turnaround:   req.Turnaround,
		FieldSchema:  req.FieldSchema,
	})
	if err != nil {
		h.writeServiceWriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) writeServiceWriteError(w http.ResponseWriter, err error) {
	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeError(w, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, catalog.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "service not found")
	case errors.Is(err, repository.ErrDuplicateSlug):
		h.writeError(w, http.StatusConflict, "slug already in use")
	default:
		h.logger.Error("save service error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// DeleteService removes a catalog override.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteService(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "service not found")
			return
		}
		h.logger.Error("delete service error", zap.Error(err), zap.String("id", id))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type seedResponse struct {
	Seeded int `json:"seeded"`
}

// SeedServices copies the bundled catalog into the database.
func (h *Handler) SeedServices(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.SeedDefaults(r.Context())
	if err != nil {
		h.logger.Error("seed services error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, seedResponse{Seeded: n})
}
