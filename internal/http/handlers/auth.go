package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/middleware"
	"github.com/signalix/accounts/internal/model"
)

// AuthService is the credential core used by the handlers
type AuthService interface {
	RequestOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (auth.TokenPair, model.Account, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Logout(ctx context.Context, accountID uuid.UUID) error
	LoginWithGoogle(ctx context.Context, idToken string) (auth.FederatedResult, error)
	Register(ctx context.Context, email, name string) (model.Account, error)
	Account(ctx context.Context, id uuid.UUID) (model.Account, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// tokenResponse is returned by verify-otp and refresh
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

func newTokenResponse(p auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
		TokenType:    "Bearer",
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

type googleLoginResponse struct {
	tokenResponse
	NewUser bool                 `json:"newUser"`
	Account model.AccountSummary `json:"account"`
}

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandleSendOTP handles POST /api/v1/auth/send-otp
func (h *AuthHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		respondWithError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.svc.RequestOTP(r.Context(), req.Email); err != nil {
		h.logFailure(r, "otp request failed", req.Email, err)
		respondWithError(w, r, statusFor(err), messageFor(err))
		return
	}

	render.JSON(w, r, messageResponse{Message: "otp_sent"})
}

// HandleVerifyOTP handles POST /api/v1/auth/verify-otp. Every verification failure except an
// infrastructure error yields the same 401 body.
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" {
		respondWithError(w, r, http.StatusBadRequest, "email and otp are required")
		return
	}

	pair, _, err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.logFailure(r, "otp verification failed", req.Email, err)
		if isInternal(err) {
			respondWithError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}
		respondWithError(w, r, http.StatusUnauthorized, "invalid or expired OTP")
		return
	}

	render.JSON(w, r, newTokenResponse(pair))
}

// HandleRefresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "refresh failed", "err", err)
			respondWithError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}
		respondWithError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	render.JSON(w, r, newTokenResponse(pair))
}

// HandleGoogleLogin handles POST /api/v1/auth/google
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		respondWithError(w, r, http.StatusBadRequest, "idToken is required")
		return
	}

	res, err := h.svc.LoginWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "google login failed", "err", err)
		} else {
			h.logger.InfoContext(r.Context(), "google login rejected", "err", err)
		}
		respondWithError(w, r, statusFor(err), messageFor(err))
		return
	}

	render.JSON(w, r, googleLoginResponse{
		tokenResponse: newTokenResponse(res.TokenPair),
		NewUser:       res.NewUser,
		Account:       res.Account.Summary(),
	})
}

// HandleRegister handles POST /api/v1/auth/account
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.svc.Register(r.Context(), req.Email, req.Name)
	if err != nil {
		h.logFailure(r, "registration failed", req.Email, err)
		respondWithError(w, r, statusFor(err), messageFor(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, account.Summary())
}

// HandleGetAccount handles GET /api/v1/auth/account/{id} (protected)
func (h *AuthHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := h.svc.Account(r.Context(), id)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "account lookup failed", "account_id", id, "err", err)
		}
		respondWithError(w, r, statusFor(err), messageFor(err))
		return
	}

	render.JSON(w, r, account.Summary())
}

// HandleLogout handles POST /api/v1/auth/logout (protected). Revokes every refresh token of the caller.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Logout(r.Context(), accountID); err != nil {
		h.logger.ErrorContext(r.Context(), "logout failed", "account_id", accountID, "err", err)
		respondWithError(w, r, statusFor(err), messageFor(err))
		return
	}

	render.JSON(w, r, messageResponse{Message: "logged out"})
}

// HandleMe handles GET /me (protected). Returns the authenticated account.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.GetAccount(r.Context())
	if !ok || account == nil {
		respondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	render.JSON(w, r, account.Summary())
}

func (h *AuthHandler) logFailure(r *http.Request, msg, email string, err error) {
	level := slog.LevelInfo
	if isInternal(err) {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg, "email", model.MaskEmail(model.NormalizeEmail(email)), "err", err)
}

// statusFor maps the credential error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnexpected), errors.Is(err, auth.ErrSigning):
		return http.StatusInternalServerError
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, auth.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidAssertion),
		errors.Is(err, auth.ErrInvalidCode),
		errors.Is(err, auth.ErrAttemptsExceeded):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch statusFor(err) {
	case http.StatusInternalServerError:
		return "internal server error"
	case http.StatusBadRequest:
		return "invalid input"
	case http.StatusNotFound:
		return "not found"
	case http.StatusTooManyRequests:
		return auth.ErrThrottled.Error()
	case http.StatusConflict:
		return auth.ErrAlreadyExists.Error()
	default:
		return "unauthorized"
	}
}

func isInternal(err error) bool {
	return statusFor(err) == http.StatusInternalServerError
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, map[string]string{"error": message})
}
