// Package handler exposes the account lifecycle over HTTP. Routes that act
// on the calling account sit behind the bearer-token middleware; everything
// else is anonymous.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shopcore/internal/account/models"
	"shopcore/internal/account/service"
	"shopcore/internal/platform/middleware"
	dErrors "shopcore/pkg/domain-errors"
	"shopcore/pkg/httputil"
	"shopcore/pkg/requestcontext"
)

// SessionIssuer mints bearer tokens after a successful login.
type SessionIssuer interface {
	Issue(accountID string, kind models.Kind, now time.Time) (string, time.Time, error)
	Validate(token string) (string, error)
}

// Handler handles account lifecycle endpoints.
type Handler struct {
	service  *service.Service
	sessions SessionIssuer
	logger   *slog.Logger
}

// New creates an account Handler.
func New(svc *service.Service, sessions SessionIssuer, logger *slog.Logger) *Handler {
	return &Handler{service: svc, sessions: sessions, logger: logger}
}

// Register mounts the account routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/account/register", h.handleRegister)
	r.Get("/account/confirm", h.handleConfirm)
	r.Post("/account/confirm/resend", h.handleResendConfirmation)
	r.Post("/account/login", h.handleLogin)
	r.Post("/account/logout", h.handleLogout)
	r.Post("/account/password/forgot", h.handleForgotPassword)
	r.Post("/account/password/reset", h.handleResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.sessions))
		r.Post("/account/password/change", h.handleChangePassword)
		r.Get("/account/profile", h.handleGetProfile)
		r.Put("/account/profile", h.handleUpdateProfile)
		r.Get("/account/audit", h.handleAuditTrail)
	})
}

type addressSelection struct {
	CountryID int64 `json:"countryId"`
	StateID   int64 `json:"stateId"`
	CityID    int64 `json:"cityId"`
}

type registerRequest struct {
	Email     string            `json:"email"`
	Password  string            `json:"password"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Document  string            `json:"document"`
	Address   string            `json:"address"`
	Phone     string            `json:"phone"`
	Selection *addressSelection `json:"addressSelection,omitempty"`
}

// accountView is the public shape of an account. Credential and concurrency
// fields never leave the service.
type accountView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	Document  string `json:"document,omitempty"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CityID    *int64 `json:"cityId,omitempty"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
}

func viewOf(account *models.Account) accountView {
	return accountView{
		ID:        account.ID,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		FullName:  account.FullName(),
		Document:  account.Document,
		Address:   account.Address,
		Phone:     account.Phone,
		CityID:    account.CityID,
		Kind:      string(account.Kind),
		State:     string(account.State),
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if !govalidator.IsEmail(req.Email) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "a valid email is required"))
		return
	}
	if len(req.Password) < 6 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "password must be at least 6 characters"))
		return
	}

	account, err := h.service.Register(r.Context(), service.RegisterRequest{
		Email:    govalidator.Trim(req.Email, ""),
		Password: req.Password,
		Profile: models.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Document:  req.Document,
			Address:   req.Address,
			Phone:     req.Phone,
		},
		Address: req.Selection.toService(),
	})
	if err != nil {
		// The account may exist even though the confirmation mail failed;
		// surface both so the client can offer a resend.
		if account != nil && dErrors.Is(err, dErrors.CodeNotificationFailed) {
			h.logger.ErrorContext(r.Context(), "confirmation mail failed after registration",
				"account_id", account.ID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, viewOf(account))
}

func (s *addressSelection) toService() *service.AddressSelection {
	if s == nil {
		return nil
	}
	return &service.AddressSelection{
		CountryID: s.CountryID,
		StateID:   s.StateID,
		CityID:    s.CityID,
	}
}

// handleConfirm answers the link delivered by mail, so parameters arrive in
// the query string rather than a JSON body.
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	token := r.URL.Query().Get("token")
	if accountID == "" || token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "accountId and token are required"))
		return
	}
	if err := h.service.ConfirmEmail(r.Context(), accountID, token); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (h *Handler) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !govalidator.IsEmail(req.Email) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "a valid email is required"))
		return
	}
	if err := h.service.ResendConfirmation(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Account     accountView `json:"account"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	account, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	token, expiresAt, err := h.sessions.Issue(account.ID, account.Kind, requestcontext.Now(r.Context()))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue session token",
			"account_id", account.ID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "issue session"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Account:     viewOf(account),
	})
}

// handleLogout exists for client symmetry: sessions are stateless JWTs, so
// logging out is discarding the token.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleForgotPassword always answers 202 so callers cannot probe which
// emails have accounts.
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !govalidator.IsEmail(req.Email) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "a valid email is required"))
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string `json:"accountId"`
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.NewPassword) < 6 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "password must be at least 6 characters"))
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.AccountID, req.Token, req.NewPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.NewPassword) < 6 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "password must be at least 6 characters"))
		return
	}

	accountID := requestcontext.AccountID(r.Context())
	if err := h.service.ChangePassword(r.Context(), accountID, req.OldPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuditTrail returns the caller's own lifecycle history.
func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.AuditTrail(r.Context(), requestcontext.AccountID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), requestcontext.AccountID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewOf(account))
}

type updateProfileRequest struct {
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Document  string            `json:"document"`
	Address   string            `json:"address"`
	Phone     string            `json:"phone"`
	ImageID   uuid.UUID         `json:"imageId,omitempty"`
	Selection *addressSelection `json:"addressSelection,omitempty"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	account, err := h.service.UpdateProfile(r.Context(), requestcontext.AccountID(r.Context()), models.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Document:  req.Document,
		Address:   req.Address,
		Phone:     req.Phone,
		ImageID:   req.ImageID,
	}, req.Selection.toService())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewOf(account))
}
