package apihandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"skald/internal/app"
	"skald/internal/metrics"
	"skald/internal/services"
	"skald/internal/store"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	Ledger   *services.LedgerService
	Catalog  *services.CatalogService
	Imports  *services.ImportService
	Search   *services.SearchService
	Jobs     store.JobClient // nil disables async imports
	Store    Pinger
	Embedder services.EmbeddingProvider
	Metrics  *metrics.Metrics
}

func NewAPIHandler(a *app.App) *APIHandler {
	return &APIHandler{
		Ledger:   a.LedgerService,
		Catalog:  a.CatalogService,
		Imports:  a.ImportService,
		Search:   a.SearchService,
		Jobs:     a.JobClient,
		Store:    a.Store,
		Embedder: a.Embedder,
		Metrics:  a.Metrics,
	}
}

// HealthHandler reports store reachability and the embedding provider state.
func (h *APIHandler) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := gin.H{"status": "ok", "store": "ok", "embedding": "disabled"}
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
			resp["store"] = err.Error()
		}
	}
	if h.Embedder != nil {
		resp["embedding"] = h.Embedder.Status().String()
		resp["embedding_provider"] = h.Embedder.Name()
	}
	c.JSON(status, resp)
}

// JobStatusHandler reports an asynchronous import owned by the caller.
func (h *APIHandler) JobStatusHandler(c *gin.Context) {
	if h.Jobs == nil {
		JSONError(c, http.StatusServiceUnavailable, "jobs_unavailable", "asynchronous imports require redis")
		return
	}

	job, err := h.Jobs.ImportStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && job.Tenant != tenantFrom(c)) {
		NotFound(c, "job not found")
		return
	}
	if err != nil {
		RespondError(c, err)
		return
	}

	resp := gin.H{"id": job.ID, "state": job.State}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	if len(job.Result) > 0 {
		resp["result"] = json.RawMessage(job.Result)
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// parsePagination reads limit (default 20, at most 100) and offset.
func parsePagination(c *gin.Context) (limit, offset int, err error) {
	limit = 20
	if l := c.Query("limit"); l != "" {
		parsed, perr := strconv.Atoi(l)
		if perr != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("invalid limit: %s", l)
		}
		limit = min(parsed, 100)
	}
	if o := c.Query("offset"); o != "" {
		parsed, perr := strconv.Atoi(o)
		if perr != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("invalid offset: %s", o)
		}
		offset = parsed
	}
	return limit, offset, nil
}
