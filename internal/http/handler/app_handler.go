package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
	"github.com/Faizanmal/SyncQuote-sub003/internal/http/middleware"
	"github.com/Faizanmal/SyncQuote-sub003/internal/service"
)

// AppHandler exposes the app registry endpoints. Every route requires a
// session and is scoped to the owning user.
type AppHandler struct {
	Apps *service.AppService
}

// NewAppHandler creates the registry handler set.
func NewAppHandler(apps *service.AppService) *AppHandler {
	return &AppHandler{Apps: apps}
}

// Create registers an app. The client secret appears in this response and
// never again.
func (h *AppHandler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Session required."})
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		RedirectURI string `json:"redirect_uri" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "name and redirect_uri are required."})
		return
	}

	app, plaintextSecret, err := h.Apps.Create(c.Request.Context(), userID, req.Name, req.RedirectURI)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            strconv.FormatInt(app.ID, 10),
		"name":          app.Name,
		"client_id":     app.ClientID,
		"client_secret": plaintextSecret,
		"redirect_uri":  app.RedirectURI,
		"created_at":    app.CreatedAt,
	})
}

// List returns the caller's apps without secret material.
func (h *AppHandler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Session required."})
		return
	}

	apps, err := h.Apps.List(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		out = append(out, appView(app))
	}
	c.JSON(http.StatusOK, out)
}

// Get returns one owned app.
func (h *AppHandler) Get(c *gin.Context) {
	userID, appID, ok := h.ownedApp(c)
	if !ok {
		return
	}

	app, err := h.Apps.Get(c.Request.Context(), userID, appID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, appView(app))
}

// Delete removes an owned app, revoking its tokens and discarding its codes.
func (h *AppHandler) Delete(c *gin.Context) {
	userID, appID, ok := h.ownedApp(c)
	if !ok {
		return
	}

	if err := h.Apps.Delete(c.Request.Context(), userID, appID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegenerateSecret rotates the client secret. The new secret appears in
// this response and never again; the old one is permanently invalid.
func (h *AppHandler) RegenerateSecret(c *gin.Context) {
	userID, appID, ok := h.ownedApp(c)
	if !ok {
		return
	}

	plaintextSecret, err := h.Apps.RegenerateSecret(c.Request.Context(), userID, appID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_secret": plaintextSecret})
}

func (h *AppHandler) ownedApp(c *gin.Context) (userID, appID int64, ok bool) {
	userID, sessionOK := middleware.CurrentUserID(c)
	if !sessionOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Session required."})
		return 0, 0, false
	}
	appID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "App not found."})
		return 0, 0, false
	}
	return userID, appID, true
}

func appView(app domain.App) gin.H {
	return gin.H{
		"id":           strconv.FormatInt(app.ID, 10),
		"name":         app.Name,
		"client_id":    app.ClientID,
		"redirect_uri": app.RedirectURI,
		"is_active":    app.IsActive,
		"created_at":   app.CreatedAt,
	}
}
