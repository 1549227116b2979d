/**
 * @description
 * HTTP handlers for the back-office API. Handlers decode the request, pull the session from
 * the context, call the operation layer and write its uniform result. They hold no business
 * rules of their own.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - internal/app: The operation layer and its Result type.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/farmacias-vallenar/backoffice-service/internal/app"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// BackOffice is the operation layer the handlers call into.
type BackOffice interface {
	CreateLocation(ctx context.Context, session *domain.Session, req domain.CreateLocationRequest) app.Result
	DeactivateLocation(ctx context.Context, session *domain.Session, locationID string, req domain.DeactivateLocationRequest) app.Result
	UpdateLocationConfig(ctx context.Context, session *domain.Session, locationID string, req domain.UpdateLocationConfigRequest) app.Result
	CreateTerminal(ctx context.Context, session *domain.Session, locationID string, req domain.CreateTerminalRequest) app.Result
	CreateAccount(ctx context.Context, session *domain.Session, req domain.CreateAccountRequest) app.Result
	UpdateAccount(ctx context.Context, session *domain.Session, accountID string, req domain.UpdateAccountRequest) app.Result
	DeactivateAccount(ctx context.Context, session *domain.Session, accountID string, req domain.DeactivateAccountRequest) app.Result
	AssignStaff(ctx context.Context, session *domain.Session, userID string, req domain.AssignStaffRequest) app.Result
	SetStaffPIN(ctx context.Context, session *domain.Session, userID string, req domain.SetStaffPINRequest) app.Result
	GetSetting(ctx context.Context, session *domain.Session, key, pin string) app.Result
	UpdateSetting(ctx context.Context, session *domain.Session, key string, req domain.UpdateSettingRequest) app.Result
	QueryAudit(ctx context.Context, session *domain.Session, entityType, entityID string, limit int) app.Result
}

// Handlers contains the HTTP handlers for the back-office service.
type Handlers struct {
	svc    BackOffice
	logger *zap.Logger
}

func NewHandlers(svc BackOffice, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, logger: logger.With(zap.String("component", "api"))}
}

func (h *Handlers) CreateLocationHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, r, http.StatusCreated, h.svc.CreateLocation(r.Context(), SessionFromContext(r.Context()), req))
}

func (h *Handlers) DeactivateLocationHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.DeactivateLocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.DeactivateLocation(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) UpdateLocationConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateLocationConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.UpdateLocationConfig(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) CreateTerminalHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTerminalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.CreateTerminal(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusCreated, result)
}

func (h *Handlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, r, http.StatusCreated, h.svc.CreateAccount(r.Context(), SessionFromContext(r.Context()), req))
}

func (h *Handlers) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.UpdateAccount(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) DeactivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.DeactivateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.DeactivateAccount(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) AssignStaffHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.AssignStaffRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.AssignStaff(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "userId"), req)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) SetStaffPINHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.SetStaffPINRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.SetStaffPIN(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "userId"), req)
	h.respond(w, r, http.StatusOK, result)
}

// GetSettingHandler reads a setting. CRITICAL reads take the PIN from the X-Privileged-PIN header.
func (h *Handlers) GetSettingHandler(w http.ResponseWriter, r *http.Request) {
	pin := r.Header.Get(HeaderPrivilegedPIN)
	result := h.svc.GetSetting(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "key"), pin)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) UpdateSettingHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateSettingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result := h.svc.UpdateSetting(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "key"), req)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) QueryAuditHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeResult(w, http.StatusBadRequest, failure(domain.ErrKindValidation, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	result := h.svc.QueryAudit(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"), limit)
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, successStatus int, result app.Result) {
	if result.Success {
		writeResult(w, successStatus, result)
		return
	}
	status := statusFor(result.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("code", string(result.Code)))
	}
	writeResult(w, status, result)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrKindUnauthenticated, domain.ErrKindInvalidPIN:
		return http.StatusUnauthorized
	case domain.ErrKindForbidden:
		return http.StatusForbidden
	case domain.ErrKindNotFound:
		return http.StatusNotFound
	case domain.ErrKindValidation, domain.ErrKindUnknownSetting:
		return http.StatusBadRequest
	case domain.ErrKindConcurrentModification:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into dst, writing a VALIDATION result on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		message := "invalid request body"
		if errors.Is(err, io.EOF) {
			message = "request body is required"
		}
		writeResult(w, http.StatusBadRequest, failure(domain.ErrKindValidation, message))
		return false
	}
	return true
}

func failure(kind domain.ErrorKind, message string) app.Result {
	return app.Result{Error: message, Code: kind}
}

// writeResult is a helper function to write the uniform result as a JSON response.
func writeResult(w http.ResponseWriter, status int, result app.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		// The status line is already out; nothing useful left to send.
		return
	}
}
