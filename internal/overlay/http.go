package overlay

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/logger"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserDirectory resolves share recipients.
type UserDirectory interface {
	LookupByEmail(ctx context.Context, email string) (string, error)
}

// RegisterRoutes mounts star and share endpoints onto the router.
func RegisterRoutes(group *gin.RouterGroup, service *Service, codec naming.Codec, users UserDirectory) {
	handler := &httpHandler{service: service, codec: codec, users: users}

	starred := group.Group("/starred")
	starred.POST("", handler.star)
	starred.GET("", handler.listStarred)
	starred.GET("/check", handler.isStarred)
	starred.DELETE("/:itemID", handler.unstar)

	shared := group.Group("/shared")
	shared.POST("", handler.share)
	shared.GET("/with-me", handler.listSharedWithMe)
	shared.GET("/by-me", handler.listSharedByMe)
	shared.GET("/check", handler.isShared)
	shared.DELETE("/:itemID", handler.unshare)
}

type httpHandler struct {
	service *Service
	codec   naming.Codec
	users   UserDirectory
}

// itemRef names an object in some user's namespace. OwnerID defaults to the caller.
type itemRef struct {
	Bucket  string `json:"bucket" form:"bucket" binding:"required"`
	File    string `json:"file" form:"file" binding:"required"`
	OwnerID string `json:"owner_id" form:"owner_id"`
}

type starRequest struct {
	itemRef
	Type string `json:"type" binding:"omitempty,oneof=file folder"`
}

type shareRequest struct {
	Bucket string `json:"bucket" binding:"required"`
	File   string `json:"file" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
}

func (h *httpHandler) star(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req starRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bucketName, fileName, err := h.resolve(userID, req.itemRef)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.service.Star(c.Request.Context(), userID, bucketName, fileName, ItemType(req.Type))
	if err != nil {
		h.fail(c, "failed to star item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *httpHandler) listStarred(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.service.ListStarred(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "failed to list starred items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *httpHandler) isStarred(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var ref itemRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bucketName, fileName, err := h.resolve(userID, ref)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	starred, err := h.service.IsStarred(c.Request.Context(), userID, bucketName, fileName)
	if err != nil {
		h.fail(c, "failed to check star", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"starred": starred})
}

func (h *httpHandler) unstar(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	if _, err := h.service.Unstar(c.Request.Context(), itemID, userID); err != nil {
		h.fail(c, "failed to unstar item", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) share(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bucketName, fileName, err := h.resolve(userID, itemRef{Bucket: req.Bucket, File: req.File})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipientID, err := h.users.LookupByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
			return
		}
		h.fail(c, "failed to resolve recipient", err)
		return
	}

	item, err := h.service.Share(c.Request.Context(), bucketName, fileName, userID, recipientID)
	if err != nil {
		h.fail(c, "failed to share item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *httpHandler) listSharedWithMe(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.service.ListSharedWithUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "failed to list shared items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *httpHandler) listSharedByMe(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.service.ListSharedByUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "failed to list shared items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *httpHandler) isShared(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var ref itemRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bucketName, fileName, err := h.resolve(userID, ref)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shared, err := h.service.IsShared(c.Request.Context(), bucketName, fileName, userID)
	if err != nil {
		h.fail(c, "failed to check share", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shared": shared})
}

func (h *httpHandler) unshare(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	if _, err := h.service.Unshare(c.Request.Context(), itemID, userID); err != nil {
		h.fail(c, "failed to unshare item", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// resolve maps a logical reference in ref.OwnerID's namespace onto physical names.
func (h *httpHandler) resolve(callerID string, ref itemRef) (string, string, error) {
	owner := ref.OwnerID
	if owner == "" {
		owner = callerID
	}
	bucketName, err := h.codec.EncodeBucket(owner, ref.Bucket)
	if err != nil {
		return "", "", err
	}
	fileName, err := h.codec.EncodeKey(owner, ref.File)
	if err != nil {
		return "", "", err
	}
	return bucketName, fileName, nil
}

func (h *httpHandler) fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, ErrInvalidItemType), errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrSelfShare), errors.Is(err, apperr.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.With(c, nil).Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
