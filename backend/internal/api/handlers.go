package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/memory"
	"hybrid-memory/backend/internal/metalearning"
)

type entitiesRequest struct {
	Entities []graph.Entity `json:"entities" binding:"required,min=1"`
}

type relationsRequest struct {
	Relations []graph.Relation `json:"relations" binding:"required,min=1"`
}

type deleteEntitiesRequest struct {
	EntityNames []string `json:"entityNames" binding:"required,min=1"`
}

type observationsRequest struct {
	Observations []memory.ObservationInput `json:"observations" binding:"required,min=1,dive"`
}

type deleteObservationsRequest struct {
	Deletions []memory.ObservationDeletion `json:"deletions" binding:"required,min=1,dive"`
}

type searchRequest struct {
	Query          string               `json:"query" binding:"required"`
	Limit          int                  `json:"limit"`
	ScoreThreshold *float32             `json:"score_threshold" binding:"omitempty,min=0,max=1"`
	Filters        *graph.SearchFilters `json:"filters"`
}

type relatedRequest struct {
	EntityName    string   `json:"entity_name" binding:"required"`
	MaxDepth      *int     `json:"max_depth" binding:"omitempty,min=0,max=5"`
	RelationTypes []string `json:"relation_types"`
}

type chainsRequest struct {
	StartEntityID string `json:"start_entity_id" binding:"required"`
	MaxDepth      *int   `json:"max_depth" binding:"omitempty,min=1,max=10"`
}

type connectionsQuery struct {
	Entity string `form:"entity" binding:"required"`
}

type typeQuery struct {
	Type string `form:"type" binding:"required"`
}

type pathQuery struct {
	Name     string `form:"name" binding:"required"`
	MaxDepth *int   `form:"max_depth" binding:"omitempty,min=1,max=5"`
}

type reindexRequest struct {
	Recreate bool `json:"recreate"`
}

func limitOrDefault(limit int) int {
	if limit == 0 {
		return DefaultSearchLimit
	}
	return limit
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// ============================================================================
// Graph mutations
// ============================================================================

func (h *Handler) readGraph(c *gin.Context) {
	g, err := h.memory.ReadGraph(c.Request.Context())
	if err != nil {
		h.fail(c, "read graph", err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) createEntities(c *gin.Context) {
	var req entitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.memory.CreateEntities(c.Request.Context(), req.Entities)
	if err != nil {
		h.fail(c, "create entities", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": created})
}

func (h *Handler) createRelations(c *gin.Context) {
	var req relationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	saved, err := h.memory.CreateRelations(c.Request.Context(), req.Relations)
	if err != nil {
		h.fail(c, "create relations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relations": saved})
}

func (h *Handler) addObservations(c *gin.Context) {
	var req observationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	results, err := h.memory.AddObservations(c.Request.Context(), req.Observations)
	if err != nil {
		h.fail(c, "add observations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) deleteEntities(c *gin.Context) {
	var req deleteEntitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.memory.DeleteEntities(c.Request.Context(), req.EntityNames); err != nil {
		h.fail(c, "delete entities", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) deleteObservations(c *gin.Context) {
	var req deleteObservationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.memory.DeleteObservations(c.Request.Context(), req.Deletions); err != nil {
		h.fail(c, "delete observations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) deleteRelations(c *gin.Context) {
	var req relationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.memory.DeleteRelations(c.Request.Context(), req.Relations); err != nil {
		h.fail(c, "delete relations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ============================================================================
// Queries
// ============================================================================

func (h *Handler) searchSimilar(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	matches, err := h.memory.SearchSimilar(c.Request.Context(), req.Query, limitOrDefault(req.Limit), req.ScoreThreshold)
	if err != nil {
		h.fail(c, "search similar", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": matches})
}

func (h *Handler) searchWithFilters(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	matches, err := h.memory.SearchWithFilters(c.Request.Context(), req.Query, req.Filters, limitOrDefault(req.Limit), req.ScoreThreshold)
	if err != nil {
		h.fail(c, "search with filters", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": matches})
}

func (h *Handler) searchRelated(c *gin.Context) {
	var req relatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.memory.SearchRelated(c.Request.Context(), req.EntityName, intOrDefault(req.MaxDepth, DefaultRelatedDepth), req.RelationTypes)
	if err != nil {
		h.fail(c, "search related", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) hybridSearch(c *gin.Context) {
	var req memory.HybridQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.Limit = limitOrDefault(req.Limit)
	res, err := h.memory.HybridSearch(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "hybrid search", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) findChains(c *gin.Context) {
	var req chainsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.memory.FindRelationshipChains(c.Request.Context(), req.StartEntityID, intOrDefault(req.MaxDepth, DefaultChainDepth))
	if err != nil {
		h.fail(c, "find relationship chains", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) analyzeConnections(c *gin.Context) {
	var req connectionsQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.memory.AnalyzeMemoryConnections(c.Request.Context(), req.Entity)
	if err != nil {
		h.fail(c, "analyze connections", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ============================================================================
// Meta-learning and maintenance
// ============================================================================

func (h *Handler) storePrinciple(c *gin.Context) {
	var req metalearning.PrincipleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.memory.StorePrinciple(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "store principle", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) trackApplication(c *gin.Context) {
	var req memory.TrackInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := h.memory.TrackApplication(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "track application", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity": updated})
}

func (h *Handler) reindex(c *gin.Context) {
	var req reindexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	report, err := h.memory.Reindex(c.Request.Context(), req.Recreate)
	if err != nil {
		h.fail(c, "reindex", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) entitiesByType(c *gin.Context) {
	var req typeQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	names, err := h.memory.EntitiesByType(c.Request.Context(), req.Type)
	if err != nil {
		h.fail(c, "entities by type", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": req.Type, "entities": names})
}

func (h *Handler) relatedByPath(c *gin.Context) {
	var req pathQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	names, err := h.memory.RelatedByPath(c.Request.Context(), req.Name, intOrDefault(req.MaxDepth, DefaultPathDepth))
	if err != nil {
		h.fail(c, "related by path", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": req.Name, "entities": names})
}
