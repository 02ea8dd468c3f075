package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/agent-builder/fluid-api/internal/auth"
	"github.com/bizmatters/agent-builder/fluid-api/internal/history"
	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
	"github.com/bizmatters/agent-builder/fluid-api/internal/orchestration"
)

// Generator is the text generator behind every request, probed by the readiness check
type Generator interface {
	orchestration.TextGenerator
	IsHealthy(ctx context.Context) bool
}

// OptionsFunc builds orchestrator options for a request's documentation and raw flag
type OptionsFunc func(documentation string, raw bool) orchestration.Options

// Config wires the handler's collaborators
type Config struct {
	Generator     Generator
	Options       OptionsFunc
	Metrics       orchestration.MetricsRecorder
	Store         history.Store
	JWTManager    *auth.JWTManager
	TokenDuration time.Duration
	Logger        *zap.Logger
}

// Handler serves the task API
type Handler struct {
	generator     Generator
	options       OptionsFunc
	metrics       orchestration.MetricsRecorder
	store         history.Store
	jwtManager    *auth.JWTManager
	tokenDuration time.Duration
	tracer        trace.Tracer
	logger        *zap.Logger
}

// NewHandler creates a new gateway handler
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Options == nil {
		cfg.Options = func(documentation string, raw bool) orchestration.Options {
			return orchestration.Options{Documentation: documentation, Raw: raw}
		}
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = auth.DefaultTokenDuration
	}

	return &Handler{
		generator:     cfg.Generator,
		options:       cfg.Options,
		metrics:       cfg.Metrics,
		store:         cfg.Store,
		jwtManager:    cfg.JWTManager,
		tokenDuration: cfg.TokenDuration,
		tracer:        otel.Tracer("gateway"),
		logger:        cfg.Logger.With(zap.String("component", "gateway")),
	}
}

func (h *Handler) orchestrator(documentation string, raw bool) *orchestration.Orchestrator {
	opts := h.options(documentation, raw)
	if h.metrics != nil {
		opts.Metrics = h.metrics
	}
	return orchestration.NewOrchestrator(h.generator, opts, h.logger)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready reports whether the store and the generator can serve traffic
func (h *Handler) Ready(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	if !h.generator.IsHealthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "text generator unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Login godoc
// @Summary Operator login
// @Description Authenticate an operator and return a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid request", err)
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			h.logger.Error("failed to look up user", zap.Error(err))
		}
		h.logger.Warn("login rejected", zap.String("email", req.Email), zap.String("reason", "unknown user"))
		respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid email or password", nil)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		h.logger.Warn("login rejected", zap.String("email", req.Email), zap.String("reason", "invalid password"))
		respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid email or password", nil)
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(ctx, user.ID, user.Email, user.Roles, h.tokenDuration)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to generate token", nil)
		return
	}

	h.logger.Info("user logged in", zap.String("user_id", user.ID))
	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.ToUserInfo(),
	})
}

// CreateUser godoc
// @Summary Register an operator
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.CreateUserRequest true "Operator"
// @Success 201 {object} models.UserInfo
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid request", err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to hash password", nil)
		return
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleOperator}
	}
	user := &models.User{
		Name:           req.Name,
		Email:          strings.ToLower(req.Email),
		HashedPassword: string(hashed),
		Roles:          roles,
	}

	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, history.ErrDuplicateUser) {
			respondError(c, http.StatusConflict, models.ErrCodeConflict, "User already exists", nil)
			return
		}
		h.logger.Error("failed to create user", zap.Error(err))
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to create user", nil)
		return
	}

	h.logger.Info("user created", zap.String("user_id", user.ID), zap.String("created_by", auth.UserID(c)))
	c.JSON(http.StatusCreated, user.ToUserInfo())
}

// RunRequest godoc
// @Summary Run a task
// @Description Generate an API request from a natural-language task, execute it and return the response envelope
// @Tags requests
// @Accept json
// @Produce json
// @Param request body models.RunRequest true "Task"
// @Success 200 {object} models.ResponseEnvelope
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests [post]
func (h *Handler) RunRequest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.run_request")
	defer span.End()

	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid request", err)
		return
	}

	userID := auth.UserID(c)
	span.SetAttributes(attribute.String("user.id", userID))

	envelope, err := h.orchestrator(req.Documentation, req.Raw).Run(ctx, req.Task)
	execution := newExecution(userID, "", req.Task, envelope, err)
	h.save(ctx, execution)

	if err != nil {
		span.RecordError(err)
		respondPipelineError(c, err, execution.ID)
		return
	}

	c.JSON(http.StatusOK, envelope)
}

// RunBatch godoc
// @Summary Run a batch of tasks
// @Description Run tasks one after another; failed tasks are reported without stopping the batch
// @Tags requests
// @Accept json
// @Produce json
// @Param request body models.BatchRequest true "Tasks"
// @Success 200 {object} models.BatchResponse
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /batches [post]
func (h *Handler) RunBatch(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.run_batch")
	defer span.End()

	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid request", err)
		return
	}

	batchID := uuid.NewString()
	span.SetAttributes(attribute.String("batch.id", batchID), attribute.Int("batch.size", len(req.Tasks)))

	response := h.runBatch(ctx, batchID, auth.UserID(c), &req, nil)
	c.JSON(http.StatusOK, response)
}

// runBatch runs req, stores every outcome and forwards it to onItem when set
func (h *Handler) runBatch(ctx context.Context, batchID, userID string, req *models.BatchRequest, onItem func(orchestration.BatchItem)) *models.BatchResponse {
	runner := orchestration.NewBatchRunner(h.orchestrator(req.Documentation, req.Raw), h.logger)

	result := runner.RunBatch(ctx, req.Tasks, func(item orchestration.BatchItem) {
		var err error
		if item.Failure != nil {
			err = item.Failure.Err
		}
		h.save(ctx, newExecution(userID, batchID, item.Task, item.Envelope, err))

		if onItem != nil {
			onItem(item)
		}
	})

	response := &models.BatchResponse{
		BatchID:   batchID,
		Envelopes: make([]models.ResponseEnvelope, 0, len(result.Envelopes)),
		Failures:  make([]models.TaskFailureInfo, 0, len(result.Failures)),
	}
	for _, envelope := range result.Envelopes {
		response.Envelopes = append(response.Envelopes, *envelope)
	}
	for _, failure := range result.Failures {
		response.Failures = append(response.Failures, failure.Info())
	}
	return response
}

// GetExecution godoc
// @Summary Get a stored execution
// @Tags requests
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} models.Execution
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /requests/{id} [get]
func (h *Handler) GetExecution(c *gin.Context) {
	execution, err := h.store.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			h.logger.Error("failed to get execution", zap.Error(err))
			respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to get execution", nil)
			return
		}
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "Execution not found", nil)
		return
	}

	if !canView(c, execution) {
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "Execution not found", nil)
		return
	}
	c.JSON(http.StatusOK, execution)
}

// GetBatch godoc
// @Summary List the executions of a batch
// @Tags requests
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {array} models.Execution
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /batches/{id} [get]
func (h *Handler) GetBatch(c *gin.Context) {
	executions, err := h.store.ListBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to list batch", zap.Error(err))
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to list batch", nil)
		return
	}

	visible := make([]*models.Execution, 0, len(executions))
	for _, execution := range executions {
		if canView(c, execution) {
			visible = append(visible, execution)
		}
	}
	if len(visible) == 0 {
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "Batch not found", nil)
		return
	}
	c.JSON(http.StatusOK, visible)
}

func (h *Handler) save(ctx context.Context, execution *models.Execution) {
	// a lost history record must not fail the task
	if err := h.store.SaveExecution(context.WithoutCancel(ctx), execution); err != nil {
		h.logger.Error("failed to save execution", zap.String("execution_id", execution.ID), zap.Error(err))
	}
}

func newExecution(userID, batchID, task string, envelope *models.ResponseEnvelope, err error) *models.Execution {
	execution := &models.Execution{
		BatchID: batchID,
		UserID:  userID,
		Task:    task,
	}
	if err != nil {
		execution.ID = uuid.NewString()
		execution.Status = models.ExecutionFailed
		execution.ErrorCode = orchestration.ErrorCode(err)
		execution.Error = err.Error()
		return execution
	}

	execution.ID = envelope.ID
	execution.Status = models.ExecutionSucceeded
	execution.Envelope = envelope
	return execution
}

func canView(c *gin.Context, execution *models.Execution) bool {
	if execution.UserID == auth.UserID(c) {
		return true
	}
	claims, ok := c.Get(auth.ClaimsKey)
	if !ok {
		return false
	}
	authClaims, ok := claims.(*auth.Claims)
	return ok && authClaims.HasRole(models.RoleAdmin)
}
