package bucket

import (
	"errors"
	"net/http"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/logger"
	"github.com/endesomnia/cloud-sub000/internal/policy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts bucket endpoints onto the router.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/buckets", handler.createBucket)
	group.GET("/buckets", handler.listBuckets)
	group.GET("/buckets/:bucket", handler.getBucket)
	group.PUT("/buckets/:bucket/access", handler.setAccess)
	group.DELETE("/buckets/:bucket", handler.deleteBucket)
}

type httpHandler struct {
	service *Service
}

type createBucketRequest struct {
	Name   string `json:"name" binding:"required"`
	Access string `json:"access" binding:"omitempty,oneof=public private public-read"`
}

type accessRequest struct {
	Access string `json:"access" binding:"required,oneof=public private public-read"`
}

func (h *httpHandler) createBucket(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := policy.ParseMode(req.Access)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bucket, err := h.service.CreateBucket(c.Request.Context(), userID, req.Name, mode)
	if err != nil {
		h.fail(c, "failed to create bucket", err)
		return
	}

	c.JSON(http.StatusCreated, bucket)
}

func (h *httpHandler) listBuckets(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	buckets, err := h.service.ListBuckets(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "failed to list buckets", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (h *httpHandler) getBucket(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bucket, err := h.service.GetBucket(c.Request.Context(), userID, c.Param("bucket"))
	if err != nil {
		h.fail(c, "failed to fetch bucket", err)
		return
	}

	c.JSON(http.StatusOK, bucket)
}

func (h *httpHandler) setAccess(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := policy.ParseMode(req.Access)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bucket, err := h.service.SetAccess(c.Request.Context(), userID, c.Param("bucket"), mode)
	if err != nil {
		h.fail(c, "failed to update bucket access", err)
		return
	}

	c.JSON(http.StatusOK, bucket)
}

func (h *httpHandler) deleteBucket(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	summary, err := h.service.DeleteBucket(c.Request.Context(), userID, c.Param("bucket"))
	if err != nil {
		if summary.ObjectsRemoved > 0 {
			logger.With(c, nil).Warn("bucket delete stopped part way",
				zap.String("bucket", summary.Bucket),
				zap.Int("objects_removed", summary.ObjectsRemoved),
			)
		}
		h.fail(c, "failed to delete bucket", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrBucketNameExists):
		c.JSON(http.StatusConflict, gin.H{"error": "bucket name already exists"})
	case errors.Is(err, ErrBucketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
	case apperr.CodeOf(err) == "BucketNotEmpty":
		c.JSON(http.StatusConflict, gin.H{"error": "bucket not empty"})
	case errors.Is(err, apperr.ErrStorage):
		logger.With(c, nil).Error(message, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": message})
	default:
		logger.With(c, nil).Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
