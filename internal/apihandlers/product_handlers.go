package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"skald/internal/models"
	"skald/internal/money"
	"skald/internal/services"
)

// ProductResponse is a product as clients see it: the vector itself is
// replaced by a flag.
type ProductResponse struct {
	*models.Product
	HasEmbedding bool `json:"has_embedding"`
}

func newProductResponse(p *models.Product) ProductResponse {
	return ProductResponse{Product: p, HasEmbedding: p.HasEmbedding()}
}

type AddProductRequest struct {
	models.ProductDraft
	SkipEmbedding bool `json:"skip_embedding"`
}

type BulkAddRequest struct {
	Products []models.ProductDraft `json:"products"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type SearchResultItem struct {
	ProductResponse
	Similarity float64 `json:"similarity"`
}

func (h *APIHandler) AddProductHandler(c *gin.Context) {
	var req AddProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.Imports.AddProduct(c.Request.Context(), tenantFrom(c), services.AddProductParams{
		Draft:         req.ProductDraft,
		SkipEmbedding: req.SkipEmbedding,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	var charged money.Amount
	if res.Charge != nil {
		charged = res.Charge.Amount
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"product":     newProductResponse(res.Product),
		"charged_usd": charged,
		"balance_usd": res.Balance,
	}})
}

func (h *APIHandler) ListProductsHandler(c *gin.Context) {
	products, err := h.Catalog.List(c.Request.Context(), tenantFrom(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	items := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		items = append(items, newProductResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "count": len(items)})
}

func (h *APIHandler) DeleteProductHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid product id")
		return
	}
	deleted, err := h.Catalog.Delete(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !deleted {
		NotFound(c, "product not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) BulkAddProductsHandler(c *gin.Context) {
	var req BulkAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.Imports.BulkAdd(c.Request.Context(), tenantFrom(c), req.Products, services.BulkOptions{})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *APIHandler) EnqueueBulkImportHandler(c *gin.Context) {
	if h.Jobs == nil {
		JSONError(c, http.StatusServiceUnavailable, "jobs_unavailable", "asynchronous imports require redis")
		return
	}

	var req BulkAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Products) == 0 {
		verr := &models.ValidationError{}
		verr.Add("products", "empty", "products must contain at least one item")
		RespondError(c, verr)
		return
	}

	tenant := tenantFrom(c)
	id, err := h.Jobs.EnqueueImport(c.Request.Context(), tenant, req.Products)
	if err != nil {
		RespondError(c, err)
		return
	}
	log.WithFields(log.Fields{"tenant": tenant.ProjectID, "job_id": id, "items": len(req.Products)}).Info("Bulk import enqueued")
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"job_id": id}})
}

func (h *APIHandler) SearchProductsHandler(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	results, err := h.Search.Search(c.Request.Context(), tenantFrom(c), services.SearchParams{Query: req.Query, Count: req.Count})
	if err != nil {
		RespondError(c, err)
		return
	}

	items := make([]SearchResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, SearchResultItem{ProductResponse: newProductResponse(r.Product), Similarity: r.Similarity})
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"query": req.Query, "results": items}})
}
