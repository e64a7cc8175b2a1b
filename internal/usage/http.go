package usage

import (
	"net/http"

	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the usage endpoint onto the router.
func RegisterRoutes(group *gin.RouterGroup, accountant *Accountant) {
	handler := &httpHandler{accountant: accountant}
	group.GET("/usage", handler.getUsage)
}

type httpHandler struct {
	accountant *Accountant
}

func (h *httpHandler) getUsage(c *gin.Context) {
	userID, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stats, err := h.accountant.Stats(c.Request.Context(), userID)
	if err != nil {
		logger.With(c, nil).Error("load usage stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
