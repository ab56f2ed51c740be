package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/middleware"
	"github.com/RobNhz/zaptec-invoice-app/services"
	"github.com/RobNhz/zaptec-invoice-app/services/zaptec"
)

type AuthHandler struct {
	api       *zaptec.APIClient
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthHandler(api *zaptec.APIClient, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{api: api, jwtSecret: jwtSecret, logger: logger}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
}

// Login exchanges Zaptec credentials for a vendor access token and a
// session token that carries it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if err := services.ValidateCredentials(req.Username, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	authResp, err := h.api.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, zaptec.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.logger.Warn("zaptec login failed", zap.Error(err))
		respondError(w, h.logger, err)
		return
	}

	ttl := time.Duration(authResp.ExpiresIn) * time.Second
	token, expiresAt, err := middleware.IssueSession(h.jwtSecret, req.Username, authResp.AccessToken, ttl)
	if err != nil {
		h.logger.Error("failed to issue session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	h.logger.Info("user logged in", zap.String("username", req.Username))
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:       token,
		ExpiresAt:   expiresAt,
		AccessToken: authResp.AccessToken,
		TokenType:   authResp.TokenType,
	})
}
