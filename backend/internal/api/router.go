package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/memory"
	"hybrid-memory/backend/internal/metalearning"
	"hybrid-memory/backend/internal/similarity"
	"hybrid-memory/backend/internal/traversal"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// Memory is the set of operations the HTTP API exposes
type Memory interface {
	CreateEntities(ctx context.Context, entities []graph.Entity) ([]graph.Entity, error)
	CreateRelations(ctx context.Context, relations []graph.Relation) ([]graph.Relation, error)
	AddObservations(ctx context.Context, inputs []memory.ObservationInput) ([]memory.ObservationResult, error)
	DeleteEntities(ctx context.Context, names []string) error
	DeleteObservations(ctx context.Context, deletions []memory.ObservationDeletion) error
	DeleteRelations(ctx context.Context, relations []graph.Relation) error
	ReadGraph(ctx context.Context) (graph.KnowledgeGraph, error)
	SearchSimilar(ctx context.Context, query string, limit int, threshold *float32) ([]similarity.Match, error)
	SearchWithFilters(ctx context.Context, query string, filters *graph.SearchFilters, limit int, threshold *float32) ([]similarity.Match, error)
	SearchRelated(ctx context.Context, name string, maxDepth int, relationTypes []string) (*traversal.RelatedResult, error)
	FindRelationshipChains(ctx context.Context, startID string, maxDepth int) (*memory.ChainsResult, error)
	AnalyzeMemoryConnections(ctx context.Context, id string) (*traversal.ConnectionAnalysis, error)
	HybridSearch(ctx context.Context, q memory.HybridQuery) (*memory.HybridResult, error)
	StorePrinciple(ctx context.Context, in metalearning.PrincipleInput) (*memory.PrincipleResult, error)
	TrackApplication(ctx context.Context, in memory.TrackInput) (*graph.Entity, error)
	Reindex(ctx context.Context, recreate bool) (*memory.ReindexReport, error)
	EntitiesByType(ctx context.Context, entityType string) ([]string, error)
	RelatedByPath(ctx context.Context, name string, maxDepth int) ([]string, error)
}

// Defaults applied when a request omits the field
const (
	DefaultSearchLimit  = 10
	DefaultRelatedDepth = 2
	DefaultChainDepth   = 3
	DefaultPathDepth    = 2
)

// Handler serves the memory API
type Handler struct {
	memory Memory
	logger *zap.Logger
}

// NewHandler creates a handler over the memory operations
func NewHandler(m Memory, logger *zap.Logger) *Handler {
	return &Handler{memory: m, logger: logger}
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(h *Handler, production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(h.logger))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/graph", h.readGraph)

		api.POST("/entities", h.createEntities)
		api.POST("/entities/delete", h.deleteEntities)

		api.POST("/relations", h.createRelations)
		api.POST("/relations/delete", h.deleteRelations)

		api.POST("/observations", h.addObservations)
		api.POST("/observations/delete", h.deleteObservations)

		api.POST("/search", h.searchSimilar)
		api.POST("/search/filtered", h.searchWithFilters)
		api.POST("/search/related", h.searchRelated)
		api.POST("/search/hybrid", h.hybridSearch)
		api.POST("/chains", h.findChains)
		api.GET("/connections", h.analyzeConnections)

		api.POST("/principles", h.storePrinciple)
		api.POST("/principles/track", h.trackApplication)

		api.POST("/admin/reindex", h.reindex)
		api.GET("/admin/types", h.entitiesByType)
		api.GET("/admin/paths", h.relatedByPath)
	}

	return router
}

// ============================================================================
// Error mapping
// ============================================================================

// statusFor maps an error category to an HTTP status
func statusFor(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeBackend, apperrors.ErrorTypeIndex, apperrors.ErrorTypeEmbedding:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("operation", op), zap.Error(err))
	}
	kind := string(apperrors.TypeOf(err))
	if kind == "" {
		kind = "internal"
	}
	c.JSON(status, gin.H{"error": err.Error(), "type": kind})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "type": string(apperrors.ErrorTypeValidation)})
}

// ============================================================================
// Middleware
// ============================================================================

// ginLogger logs one line per request
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
