package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/loomdb/loomdb/pkg/common/config"
	"github.com/loomdb/loomdb/pkg/common/metrics"
	"github.com/loomdb/loomdb/pkg/planner/optimizer"
	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// PlannerNode represents a planner node in the LoomDB cluster. It exposes
// the rewrite engine over REST: coordinators post analyzed logical plans
// and get back the optimized form.
type PlannerNode struct {
	cfg        *config.PlannerConfig
	logger     *zap.Logger
	ginRouter  *gin.Engine
	httpServer *http.Server
	engine     *optimizer.Engine
	resolver   optimizer.FunctionResolver
	metrics    *metrics.MetricsCollector
}

// NewPlannerNode creates a new planner node. The metrics collector may be
// nil, in which case no metrics are recorded.
func NewPlannerNode(cfg *config.PlannerConfig, logger *zap.Logger, collector *metrics.MetricsCollector) (*PlannerNode, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(ginLogger(logger))
	ginRouter.Use(metrics.HTTPMetricsMiddleware(collector))

	engine := &optimizer.Engine{
		Rules:     optimizer.DefaultRules(),
		MaxPasses: cfg.OptimizerMaxPasses,
		Logger:    logger,
		Metrics:   collector,
	}

	node := &PlannerNode{
		cfg:       cfg,
		logger:    logger,
		ginRouter: ginRouter,
		engine:    engine,
		resolver:  optimizer.NewBuiltinResolver(),
		metrics:   collector,
	}

	node.setupRoutes()

	return node, nil
}

// Start starts the planner node
func (p *PlannerNode) Start(ctx context.Context) error {
	p.logger.Info("Starting planner node",
		zap.String("node_id", p.cfg.NodeID),
		zap.Int("rest_port", p.cfg.RESTPort))

	p.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", p.cfg.BindAddr, p.cfg.RESTPort),
		Handler: p.ginRouter,
	}

	go func() {
		if err := p.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	p.logger.Info("Planner node started successfully",
		zap.String("rest_api", fmt.Sprintf("http://%s:%d", p.cfg.BindAddr, p.cfg.RESTPort)))

	return nil
}

// Stop stops the planner node
func (p *PlannerNode) Stop(ctx context.Context) error {
	p.logger.Info("Stopping planner node")

	if p.httpServer != nil {
		if err := p.httpServer.Shutdown(ctx); err != nil {
			p.logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}

	return nil
}

// setupRoutes sets up all REST API routes
func (p *PlannerNode) setupRoutes() {
	p.ginRouter.GET("/", p.handleRoot)

	// Plan APIs
	p.ginRouter.POST("/_plan/optimize", p.handleOptimize)
	p.ginRouter.POST("/_plan/explain", p.handleExplain)

	// Monitoring
	p.ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
	p.ginRouter.GET("/_health", p.handleHealthCheck)
}

func (p *PlannerNode) handleRoot(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"name":    "LoomDB Planner",
		"node_id": p.cfg.NodeID,
		"version": gin.H{
			"number": "1.0.0",
		},
		"tagline": "You Know, for Plans",
	})
}

func (p *PlannerNode) handleHealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "green",
		"checks": gin.H{
			"optimizer": "ok",
		},
	})
}

// optimizeRequest is the body of /_plan/optimize and /_plan/explain. The
// plan stays raw until the envelope has parsed.
type optimizeRequest struct {
	Plan json.RawMessage `json:"plan" binding:"required"`
}

func (p *PlannerNode) handleOptimize(ctx *gin.Context) {
	requestID := uuid.New().String()
	ctx.Header("X-Request-Id", requestID)
	logger := p.logger.With(zap.String("request_id", requestID))
	start := time.Now()

	root, ok := p.decodeRequest(ctx, logger)
	if !ok {
		p.metrics.RecordOptimize("invalid", time.Since(start), 0, 0, 0)
		return
	}
	inputNodes := countNodes(root)

	optimized, passes, err := p.optimize(ctx.Request.Context(), root)
	if err != nil {
		p.metrics.RecordOptimize("error", time.Since(start), 0, inputNodes, 0)
		p.respondOptimizeError(ctx, logger, err)
		return
	}

	encoded, err := EncodePlan(optimized)
	if err != nil {
		p.metrics.RecordOptimize("error", time.Since(start), passes, inputNodes, 0)
		logger.Error("Failed to encode optimized plan", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorBody("encode_exception", err.Error()))
		return
	}

	p.metrics.RecordOptimize("ok", time.Since(start), passes, inputNodes, countNodes(optimized))
	logger.Info("Plan optimized",
		zap.Int("passes", passes),
		zap.Int("input_nodes", inputNodes),
		zap.Int("output_nodes", countNodes(optimized)),
		zap.Duration("took", time.Since(start)))

	ctx.JSON(http.StatusOK, gin.H{
		"plan":   json.RawMessage(encoded),
		"passes": passes,
		"took":   time.Since(start).Milliseconds(),
	})
}

func (p *PlannerNode) handleExplain(ctx *gin.Context) {
	requestID := uuid.New().String()
	ctx.Header("X-Request-Id", requestID)
	logger := p.logger.With(zap.String("request_id", requestID))

	root, ok := p.decodeRequest(ctx, logger)
	if !ok {
		return
	}

	optimized, passes, err := p.optimize(ctx.Request.Context(), root)
	if err != nil {
		p.respondOptimizeError(ctx, logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"before": plan.Format(root),
		"after":  plan.Format(optimized),
		"passes": passes,
	})
}

// decodeRequest parses and validates the plan from the request body,
// writing the error response itself on failure.
func (p *PlannerNode) decodeRequest(ctx *gin.Context, logger *zap.Logger) (plan.Node, bool) {
	var req optimizeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorBody("parse_exception", err.Error()))
		return nil, false
	}

	root, err := DecodePlan(req.Plan)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorBody("parse_exception", err.Error()))
		return nil, false
	}

	if err := plan.Validate(root); err != nil {
		logger.Warn("Rejected malformed plan", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, errorBody("malformed_plan_exception", err.Error()))
		return nil, false
	}

	return root, true
}

// optimize runs the rewrite engine with a fresh allocator seeded from the
// incoming plan. The deadline comes from the request context.
func (p *PlannerNode) optimize(reqCtx context.Context, root plan.Node) (plan.Node, int, error) {
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, p.cfg.RequestTimeout)
		defer cancel()
	}
	if err := reqCtx.Err(); err != nil {
		return nil, 0, err
	}

	octx := optimizer.NewContext(plan.NewSymbolAllocatorFor(root), p.resolver, p.logger)
	return p.engine.OptimizeWithStats(root, octx)
}

func (p *PlannerNode) respondOptimizeError(ctx *gin.Context, logger *zap.Logger, err error) {
	var malformedErr *plan.MalformedPlanError
	var unsupportedErr *optimizer.UnsupportedConstructError
	var nonConvergenceErr *optimizer.NonConvergenceError

	switch {
	case errors.As(err, &malformedErr):
		p.metrics.RecordOptimizerFailure("malformed_plan")
		logger.Warn("Optimization rejected malformed plan", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, errorBody("malformed_plan_exception", err.Error()))
	case errors.As(err, &unsupportedErr):
		p.metrics.RecordOptimizerFailure("unsupported_construct")
		logger.Warn("Optimization hit unsupported construct", zap.Error(err))
		ctx.JSON(http.StatusUnprocessableEntity, errorBody("unsupported_construct_exception", err.Error()))
	case errors.As(err, &nonConvergenceErr):
		p.metrics.RecordOptimizerFailure("non_convergence")
		logger.Error("Optimization did not converge", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorBody("non_convergence_exception", err.Error()))
	default:
		p.metrics.RecordOptimizerFailure("internal")
		logger.Error("Optimization failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorBody("optimize_exception", err.Error()))
	}
}

func errorBody(errType, reason string) gin.H {
	return gin.H{
		"error": gin.H{
			"type":   errType,
			"reason": reason,
		},
	}
}

func countNodes(root plan.Node) int {
	count := 1
	for _, child := range root.Children() {
		count += countNodes(child)
	}
	return count
}

// ginLogger creates a Gin middleware that logs requests using zap
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
