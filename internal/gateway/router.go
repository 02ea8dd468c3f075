package gateway

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/fluid-api/internal/auth"
	"github.com/bizmatters/agent-builder/fluid-api/internal/logging"
	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

// NewRouter mounts the handler's routes
func NewRouter(h *Handler, jwtManager *auth.JWTManager, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.Middleware(logger))

	// Health checks stay at the root
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	api := router.Group("/api")
	api.POST("/auth/login", h.Login)

	protected := api.Group("")
	protected.Use(auth.RequireAuth(jwtManager, logger))

	protected.POST("/requests", h.RunRequest)
	protected.GET("/requests/:id", h.GetExecution)
	protected.POST("/batches", h.RunBatch)
	protected.GET("/batches/:id", h.GetBatch)
	protected.GET("/ws/batches", h.StreamBatch)

	protected.POST("/users", auth.RequireRole(models.RoleAdmin, logger), h.CreateUser)

	return router
}
