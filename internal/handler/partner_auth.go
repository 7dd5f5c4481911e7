package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/service"
)

// --- Register ---

type RegisterHandler struct {
	partners *service.PartnerService
}

func NewRegisterHandler(ps *service.PartnerService) *RegisterHandler {
	return &RegisterHandler{partners: ps}
}

type RegisterResponse struct {
	Message     string              `json:"message"`
	PartnerCode string              `json:"partner_code"`
	Email       string              `json:"email"`
	Status      model.PartnerStatus `json:"status"`
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.partners.Register(r.Context(), req)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, RegisterResponse{
		Message:     "Registration successful. Please check your email to verify your account.",
		PartnerCode: result.Partner.PartnerCode,
		Email:       result.Partner.Email,
		Status:      result.Partner.Status,
	})
}

// --- Verify email ---

type VerifyEmailHandler struct {
	partners *service.PartnerService
}

func NewVerifyEmailHandler(ps *service.PartnerService) *VerifyEmailHandler {
	return &VerifyEmailHandler{partners: ps}
}

type VerifyEmailResponse struct {
	Message string              `json:"message"`
	Status  model.PartnerStatus `json:"status"`
}

func (h *VerifyEmailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimSpace(r.URL.Query().Get("token"))
	if tok == "" {
		RespondError(w, http.StatusBadRequest, "invalid_request", "token query parameter is required")
		return
	}

	partner, err := h.partners.VerifyEmail(r.Context(), tok)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, VerifyEmailResponse{
		Message: "Email verified successfully. Your application is pending admin approval.",
		Status:  partner.Status,
	})
}

// --- Login ---

// LoginHandler exchanges dashboard credentials for a token pair. Repeated
// failures from one client are blocked by the attempt limiter.
type LoginHandler struct {
	partners *service.PartnerService
	limiter  *middleware.AuthAttemptLimiter
}

func NewLoginHandler(ps *service.PartnerService, limiter *middleware.AuthAttemptLimiter) *LoginHandler {
	return &LoginHandler{partners: ps, limiter: limiter}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"`
	Partner      *model.Partner `json:"partner"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	var attemptKey string
	if h.limiter != nil {
		attemptKey = h.limiter.Key(r, "login") + "|" + strings.ToLower(strings.TrimSpace(req.Email))
		if ok, wait := h.limiter.Check(attemptKey); !ok {
			middleware.WriteRetryAfter(w, wait)
			RespondError(w, http.StatusTooManyRequests, "too_many_auth_attempts", "Too many failed login attempts. Please try again later.")
			return
		}
	}

	result, err := h.partners.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.limiter != nil && isUnauthorized(err) {
			h.limiter.Failure(attemptKey)
		}
		service.RespondError(w, err)
		return
	}
	if h.limiter != nil {
		h.limiter.Success(attemptKey)
	}

	RespondJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    result.Tokens.TokenType,
		ExpiresIn:    result.Tokens.ExpiresIn,
		Partner:      result.Partner,
	})
}

func isUnauthorized(err error) bool {
	var svcErr *service.Error
	return errors.As(err, &svcErr) && svcErr.Kind == service.ErrUnauthorized
}

// --- Refresh ---

type RefreshHandler struct {
	partners *service.PartnerService
}

func NewRefreshHandler(ps *service.PartnerService) *RefreshHandler {
	return &RefreshHandler{partners: ps}
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	pair, err := h.partners.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, pair)
}

// --- Forgot password ---

type ForgotPasswordHandler struct {
	partners *service.PartnerService
}

func NewForgotPasswordHandler(ps *service.PartnerService) *ForgotPasswordHandler {
	return &ForgotPasswordHandler{partners: ps}
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ServeHTTP answers identically whether or not the email is registered.
func (h *ForgotPasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	if err := h.partners.ForgotPassword(r.Context(), req.Email); err != nil {
		log.Error().Err(err).Msg("forgot password failed")
	}
	RespondJSON(w, http.StatusOK, MessageResponse{
		Message: "If this email is registered, a password reset link has been sent.",
	})
}

// --- Reset password ---

type ResetPasswordHandler struct {
	partners *service.PartnerService
}

func NewResetPasswordHandler(ps *service.PartnerService) *ResetPasswordHandler {
	return &ResetPasswordHandler{partners: ps}
}

func (h *ResetPasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req service.ResetPasswordInput
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	if err := h.partners.ResetPassword(r.Context(), req); err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

// --- Change password ---

type ChangePasswordHandler struct {
	partners *service.PartnerService
}

func NewChangePasswordHandler(ps *service.PartnerService) *ChangePasswordHandler {
	return &ChangePasswordHandler{partners: ps}
}

func (h *ChangePasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := middleware.GetPartner(r.Context())
	if partner == nil {
		RespondError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization token")
		return
	}

	var req service.ChangePasswordInput
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	if err := h.partners.ChangePassword(r.Context(), partner, req); err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}
