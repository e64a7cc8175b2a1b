package presigned

import (
	"errors"
	"net/http"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/logger"
	"github.com/endesomnia/cloud-sub000/internal/overlay"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes share links over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/shared/:itemID/link", h.GenerateShareLink)
}

// GenerateShareLink answers POST /shared/:itemID/link?ttl=15m.
func (h *Handler) GenerateShareLink(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	shareID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid share id"})
		return
	}

	ttl := h.service.DefaultTTL()
	if raw := c.Query("ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
	}

	link, err := h.service.ShareLink(c.Request.Context(), shareID, userID, ttl)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTTL):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, overlay.ErrShareNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "share not found"})
		case errors.Is(err, ErrObjectGone):
			c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		case errors.Is(err, apperr.ErrStorage):
			logger.With(c, nil).Error("presign share link", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create link"})
		default:
			logger.With(c, nil).Error("presign share link", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create link"})
		}
		return
	}

	c.JSON(http.StatusOK, link)
}
