package server

import (
	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/bucket"
	"github.com/endesomnia/cloud-sub000/internal/config"
	"github.com/endesomnia/cloud-sub000/internal/file"
	"github.com/endesomnia/cloud-sub000/internal/logger"
	"github.com/endesomnia/cloud-sub000/internal/metrics"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/endesomnia/cloud-sub000/internal/overlay"
	"github.com/endesomnia/cloud-sub000/internal/presigned"
	"github.com/endesomnia/cloud-sub000/internal/usage"
	"github.com/gin-gonic/gin"
)

// Dependencies groups the services required by the HTTP router. Nil services
// leave their routes unmounted.
type Dependencies struct {
	Config         config.Config
	DB             Pinger
	ObjectStore    BucketLister
	Codec          naming.Codec
	RateLimiter    *RateLimiter
	AuthService    *auth.Service
	BucketService  *bucket.Service
	FileService    *file.Service
	OverlayService *overlay.Service
	UsageService   *usage.Accountant
	ShareLinks     *presigned.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	metrics.InitMetrics()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	if path := deps.Config.Metrics.PrometheusPath; path != "" {
		metrics.Register(router, path)
	}

	api := router.Group("/v1")
	if deps.AuthService == nil {
		return router
	}
	auth.RegisterRoutes(api, deps.AuthService)

	protected := api.Group("/")
	protected.Use(auth.AuthMiddleware(deps.AuthService))
	if deps.RateLimiter != nil {
		protected.Use(deps.RateLimiter.Middleware())
	}

	if deps.BucketService != nil {
		bucket.RegisterRoutes(protected, deps.BucketService)
	}
	if deps.FileService != nil {
		file.RegisterRoutes(protected, deps.FileService)
	}
	if deps.OverlayService != nil {
		overlay.RegisterRoutes(protected, deps.OverlayService, deps.Codec, deps.AuthService)
	}
	if deps.UsageService != nil {
		usage.RegisterRoutes(protected, deps.UsageService)
	}
	if deps.ShareLinks != nil {
		presigned.NewHandler(deps.ShareLinks).RegisterRoutes(protected)
	}

	return router
}
