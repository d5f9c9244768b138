// internal/api/api.go
package api

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/cloudpath/internal/api/handlers"
	"github.com/andresuchdata/cloudpath/internal/api/middleware"
	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/metrics"
	"github.com/andresuchdata/cloudpath/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DriveBrowsePath is where the Drive browse handler is mounted.
const DriveBrowsePath = "/api/v1/drive/browse"

type Services struct {
	// Files maps a backend name ("s3", "drive") to its service.
	Files        map[string]*service.FileService
	Journal      bulk.Journal
	DriveBrowser http.Handler
	Metrics      bool
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if services == nil {
		return router
	}

	if services.Metrics {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	apiGroup := router.Group("/api/v1")

	names := make([]string, 0, len(services.Files))
	for name := range services.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		handlers.NewFileHandler(services.Files[name]).Register(apiGroup.Group("/" + name))
	}

	if services.DriveBrowser != nil {
		router.Any(DriveBrowsePath+"/*any", gin.WrapH(services.DriveBrowser))
	}

	planHandler := handlers.NewPlanHandler(services.Journal, services.Files)
	planGroup := apiGroup.Group("/plans")
	{
		planGroup.GET("", planHandler.List)
		planGroup.GET("/:id", planHandler.Get)
		planGroup.POST("/:id/resume", planHandler.Resume)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
