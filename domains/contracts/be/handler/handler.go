package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
)

const (
	problemTypeValidation = "https://palmyra.land/problems/validation-error"
	problemTypeNotFound   = "https://palmyra.land/problems/not-found"
	problemTypeConflict   = "https://palmyra.land/problems/conflict"
	problemTypePublish    = "https://palmyra.land/problems/event-not-published"
	problemTypeInternal   = "https://palmyra.land/problems/internal-error"
)

const contentTypeProblem = "application/problem+json"

type operation string

const (
	createOperation  operation = "contractsCreate"
	getOperation     operation = "contractsGet"
	approveOperation operation = "contractsApprove"
)

// ProblemDetails is the RFC 7807 body returned for every failed request.
type ProblemDetails struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

type createRequest struct {
	PropertyID string `json:"property_id"`
	Address    string `json:"address"`
	SellerName string `json:"seller_name"`
}

type approveRequest struct {
	ContractID string `json:"contract_id"`
}

// Handler wires the contracts service to HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("contracts service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Register mounts the contract routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/contracts", h.ContractsCreate)
	r.Get("/contracts/{propertyId}", h.ContractsGet)
	r.Put("/contracts/{propertyId}", h.ContractsApprove)
}

func (h *Handler) ContractsCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, h.buildProblem("Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		PropertyID: body.PropertyID,
		Address:    body.Address,
		SellerName: body.SellerName,
	})
	if err != nil {
		h.writeProblem(w, h.problemForError(r.Context(), err, createOperation))
		return
	}

	w.Header().Set("Location", "/contracts/"+url.PathEscape(created.PropertyID))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ContractsGet(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	contract, err := h.svc.Get(r.Context(), propertyID)
	if err != nil {
		h.writeProblem(w, h.problemForError(r.Context(), err, getOperation))
		return
	}

	writeJSON(w, http.StatusOK, contract)
}

func (h *Handler) ContractsApprove(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := h.propertyID(w, r)
	if !ok {
		return
	}

	var body approveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeProblem(w, h.buildProblem("Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
		return
	}

	updated, err := h.svc.Update(r.Context(), service.UpdateInput{
		PropertyID: propertyID,
		ContractID: body.ContractID,
	})
	if err != nil {
		h.writeProblem(w, h.problemForError(r.Context(), err, approveOperation))
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// propertyID reads the path parameter. chi matches on RawPath when the request carries escapes
// that Path cannot represent (an encoded "/"), and on the decoded Path otherwise, so the value is
// unescaped only in the first case.
func (h *Handler) propertyID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "propertyId")
	if r.URL.RawPath == "" {
		return raw, true
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		h.writeProblem(w, h.buildProblem("Invalid property id", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
		return "", false
	}
	return id, true
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) ProblemDetails {
	status, title, detail, problemType, fields := h.classifyError(err)

	logger := platformlogging.FromContextOr(ctx, h.logger)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
		zap.Error(err),
	}

	if status >= http.StatusInternalServerError {
		logger.Error("contracts operation failed", fieldsForLog...)
	} else {
		logger.Warn("contracts request rejected", fieldsForLog...)
	}

	return h.buildProblem(title, detail, problemType, status, fields)
}

// classifyError maps the error taxonomy onto status codes. Client mistakes and state conflicts are
// all 400; infrastructure and publish failures are 500.
func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var (
		validationErr *service.ValidationError
		conflictErr   *service.ConflictError
		publishErr    *service.PublishError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			problemTypeValidation,
			validationErr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusBadRequest,
			"Contract not found",
			"no contract exists for this property",
			problemTypeNotFound,
			nil
	case errors.As(err, &conflictErr):
		return http.StatusBadRequest,
			"Conflict",
			conflictErr.Error(),
			problemTypeConflict,
			nil
	case errors.As(err, &publishErr):
		return http.StatusInternalServerError,
			"Event not published",
			"the contract was saved but the " + publishErr.Event + " event could not be sent",
			problemTypePublish,
			nil
	default:
		return http.StatusInternalServerError,
			"Internal server error",
			"an unexpected error occurred",
			problemTypeInternal,
			nil
	}
}

func (h *Handler) buildProblem(title, detail, problemType string, status int, fieldErrors service.FieldErrors) ProblemDetails {
	problem := ProblemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	}

	if len(fieldErrors) > 0 {
		copied := make(map[string][]string, len(fieldErrors))
		for field, messages := range fieldErrors {
			copied[field] = append([]string(nil), messages...)
		}
		problem.Errors = copied
	}

	return problem
}

func (h *Handler) writeProblem(w http.ResponseWriter, problem ProblemDetails) {
	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(problem.Status)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		h.logger.Error("write problem response", zap.Error(err))
	}
}

// WriteProblem renders a problem outside a handler method, e.g. from request validation middleware.
func WriteProblem(w http.ResponseWriter, title, detail string, status int) {
	problemType := problemTypeValidation
	if status >= http.StatusInternalServerError {
		problemType = problemTypeInternal
	}
	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetails{Type: problemType, Title: title, Status: status, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
