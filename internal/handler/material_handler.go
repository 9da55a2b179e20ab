package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/service"
)

// MaterialHandler serves the four material catalogs.
type MaterialHandler struct {
	svc *service.MaterialService
}

func NewMaterialHandler(svc *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{svc: svc}
}

// Create POST /api/v1/materials
func (h *MaterialHandler) Create(c *gin.Context) {
	var req service.CreateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	mat, err := h.svc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, gin.H{"material": mat})
}

// List GET /api/v1/materials?type=
func (h *MaterialHandler) List(c *gin.Context) {
	mats, err := h.svc.List(c.Request.Context(), GetActor(c), c.Query("type"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": mats})
}

// Search GET /api/v1/materials/search?q=
func (h *MaterialHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		BadRequest(c, "search term is required")
		return
	}
	mats, err := h.svc.Search(c.Request.Context(), GetActor(c), q)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": mats})
}

// Get GET /api/v1/materials/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	mat, err := h.svc.Get(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	if mat == nil {
		NotFound(c, "material not found")
		return
	}
	Success(c, gin.H{"material": mat})
}

// Update PUT /api/v1/materials/:id
func (h *MaterialHandler) Update(c *gin.Context) {
	var req service.UpdateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	mat, err := h.svc.Update(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"material": mat})
}

type quoteRequest struct {
	Supplier string  `json:"supplier" binding:"required"`
	Price    float64 `json:"price" binding:"required,gt=0"`
}

// AddQuote POST /api/v1/materials/:id/quotes
func (h *MaterialHandler) AddQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	mat, err := h.svc.AddQuote(c.Request.Context(), GetActor(c), c.Param("id"), entity.SupplierQuote{
		Supplier: req.Supplier,
		Price:    req.Price,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"material": mat})
}

// Delete DELETE /api/v1/materials/:id
func (h *MaterialHandler) Delete(c *gin.Context) {
	if err := h.svc.MoveToTrash(c.Request.Context(), GetActor(c), c.Param("id")); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// BulkDelete POST /api/v1/materials/bulk-delete
func (h *MaterialHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.svc.MoveManyToTrash(c.Request.Context(), GetActor(c), req.IDs); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"deleted": len(req.IDs)})
}

// Restore POST /api/v1/trash/materials/:trashId/restore
func (h *MaterialHandler) Restore(c *gin.Context) {
	mat, err := h.svc.RestoreFromTrash(c.Request.Context(), GetActor(c), c.Param("trashId"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"material": mat})
}

// Purge DELETE /api/v1/trash/materials/:trashId
func (h *MaterialHandler) Purge(c *gin.Context) {
	if err := h.svc.Purge(c.Request.Context(), GetActor(c), c.Param("trashId")); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}
