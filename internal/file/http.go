package file

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/bucket"
	"github.com/endesomnia/cloud-sub000/internal/logger"
	"github.com/endesomnia/cloud-sub000/internal/transfer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts file operations under the provided router group.
// File names travel in the query string since they may contain '/'.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/buckets/:bucket/files", handler.uploadFile)
	group.GET("/buckets/:bucket/files", handler.listFiles)
	group.GET("/buckets/:bucket/files/content", handler.downloadFile)
	group.DELETE("/buckets/:bucket/files", handler.deleteFile)
	group.POST("/buckets/:bucket/files/move", handler.moveFile)
	group.POST("/buckets/:bucket/files/rename", handler.renameFile)
}

type httpHandler struct {
	service *Service
}

type moveRequest struct {
	Name        string `json:"name" binding:"required"`
	Destination string `json:"destination" binding:"required"`
}

type renameRequest struct {
	Name    string `json:"name" binding:"required"`
	NewName string `json:"new_name" binding:"required"`
}

func (h *httpHandler) uploadFile(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	size := int64(-1)
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
			return
		}
		size = parsed
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart body required"})
		return
	}

	// Stream the first "file" part straight to the object store.
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed multipart body"})
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		name := c.Query("name")
		if name == "" {
			name = part.FileName()
		}
		obj, err := h.service.Upload(c.Request.Context(), userID, c.Param("bucket"), name, part, size, part.Header.Get("Content-Type"))
		_ = part.Close()
		if err != nil {
			h.fail(c, "failed to upload file", err)
			return
		}
		c.JSON(http.StatusCreated, obj)
		return
	}

	h.fail(c, "failed to upload file", ErrMissingFile)
}

func (h *httpHandler) listFiles(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	list, err := h.service.List(c.Request.Context(), userID, c.Param("bucket"))
	if err != nil {
		h.fail(c, "failed to list files", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": list})
}

func (h *httpHandler) downloadFile(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	obj, reader, err := h.service.Download(c.Request.Context(), userID, c.Param("bucket"), c.Query("name"))
	if err != nil {
		h.fail(c, "failed to download file", err)
		return
	}
	defer reader.Close()

	c.Header("Content-Type", obj.ContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(obj.Name)}))
	c.Header("Content-Length", fmt.Sprintf("%d", obj.SizeBytes))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		logger.With(c, nil).Warn("download interrupted", zap.String("file", obj.Name), zap.Error(err))
	}
}

func (h *httpHandler) deleteFile(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, c.Param("bucket"), c.Query("name")); err != nil {
		h.fail(c, "failed to delete file", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) moveFile(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.service.Move(c.Request.Context(), userID, c.Param("bucket"), req.Destination, req.Name)
	h.transferred(c, outcome, err)
}

func (h *httpHandler) renameFile(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.service.Rename(c.Request.Context(), userID, c.Param("bucket"), req.Name, req.NewName)
	h.transferred(c, outcome, err)
}

func (h *httpHandler) transferred(c *gin.Context, outcome TransferOutcome, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, outcome)
	case errors.Is(err, apperr.ErrPartialMove), errors.Is(err, apperr.ErrPartialRename):
		// Both copies exist; repeating the request finishes the job.
		c.JSON(http.StatusConflict, gin.H{
			"error":    err.Error(),
			"state":    outcome.State,
			"transfer": outcome,
		})
	case errors.Is(err, apperr.ErrMoveFailed), errors.Is(err, apperr.ErrRenameFailed):
		logger.With(c, nil).Warn("transfer failed", zap.String("kind", string(outcome.Kind)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "state": outcome.State})
	default:
		h.fail(c, "failed to "+string(outcome.Kind)+" file", err)
	}
}

func (h *httpHandler) fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidName), errors.Is(err, transfer.ErrSameObject), errors.Is(err, ErrMissingFile),
		errors.Is(err, ErrSizeMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case errors.Is(err, bucket.ErrBucketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
	case errors.Is(err, ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
	case errors.Is(err, apperr.ErrStorage):
		logger.With(c, nil).Error(message, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": message})
	default:
		logger.With(c, nil).Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
