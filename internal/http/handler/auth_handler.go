package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Faizanmal/SyncQuote-sub003/internal/http/middleware"
	"github.com/Faizanmal/SyncQuote-sub003/internal/service"
)

// AuthHandler exposes the OAuth protocol endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler creates the protocol handler set.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// Login issues a first-party session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email and password are required."})
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Authorize issues an authorization code for the signed-in user and returns
// the redirect URL the caller should navigate to.
func (h *AuthHandler) Authorize(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Session required."})
		return
	}

	var req struct {
		ClientID            string `json:"client_id" binding:"required"`
		RedirectURI         string `json:"redirect_uri" binding:"required"`
		ResponseType        string `json:"response_type" binding:"required"`
		State               string `json:"state"`
		Scope               string `json:"scope"`
		CodeChallenge       string `json:"code_challenge"`
		CodeChallengeMethod string `json:"code_challenge_method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid authorize request."})
		return
	}

	redirectURL, err := h.Auth.Authorize(c.Request.Context(), userID, service.AuthorizeRequest{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		ResponseType:        req.ResponseType,
		State:               req.State,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_url": redirectURL})
}

// Token handles OAuth token grant exchanges. Client credentials travel in
// the body; no session applies here.
func (h *AuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" json:"grant_type" binding:"required"`
		ClientID     string `form:"client_id" json:"client_id" binding:"required"`
		ClientSecret string `form:"client_secret" json:"client_secret" binding:"required"`
		Code         string `form:"code" json:"code"`
		RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
		CodeVerifier string `form:"code_verifier" json:"code_verifier"`
		RefreshToken string `form:"refresh_token" json:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid token request."})
		return
	}

	resp, err := h.Auth.Exchange(c.Request.Context(), service.TokenRequest{
		GrantType:    strings.ToLower(strings.TrimSpace(req.GrantType)),
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Revoke processes RFC 7009 style token revocation. It always reports
// success for unknown or already-revoked tokens.
func (h *AuthHandler) Revoke(c *gin.Context) {
	var req struct {
		Token         string `form:"token" json:"token" binding:"required"`
		TokenTypeHint string `form:"token_type_hint" json:"token_type_hint"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "token is required."})
		return
	}

	if err := h.Auth.Revoke(c.Request.Context(), req.Token, req.TokenTypeHint); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Validate checks the presented bearer access token for resource servers.
func (h *AuthHandler) Validate(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	identity, err := h.Auth.Validate(c.Request.Context(), token)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// ListAuthorizedApps returns the apps the signed-in user has granted.
func (h *AuthHandler) ListAuthorizedApps(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Session required."})
		return
	}

	grants, err := h.Auth.ListAuthorizedApps(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]gin.H, 0, len(grants))
	for _, grant := range grants {
		out = append(out, gin.H{
			"app": gin.H{
				"id":        strconv.FormatInt(grant.App.ID, 10),
				"name":      grant.App.Name,
				"client_id": grant.App.ClientID,
			},
			"scopes":        grant.Scopes,
			"authorized_at": grant.AuthorizedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// RevokeAuthorizedApp withdraws the signed-in user's consent for one app.
func (h *AuthHandler) RevokeAuthorizedApp(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Session required."})
		return
	}

	appID, err := strconv.ParseInt(c.Param("appId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid app id."})
		return
	}

	if err := h.Auth.RevokeAppAuthorization(c.Request.Context(), userID, appID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func respondServiceError(c *gin.Context, err error) {
	var oauthErr *service.OAuthError
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
}
