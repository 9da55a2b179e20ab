package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/awraqsoft/munaqasat/internal/service"
)

// TenderHandler serves the tender lifecycle and line-item endpoints.
type TenderHandler struct {
	svc *service.TenderService
}

func NewTenderHandler(svc *service.TenderService) *TenderHandler {
	return &TenderHandler{svc: svc}
}

// Create POST /api/v1/tenders
func (h *TenderHandler) Create(c *gin.Context) {
	var req service.CreateTenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	tender, err := h.svc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, gin.H{"tender": tender})
}

// List GET /api/v1/tenders
func (h *TenderHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	tenders, err := h.svc.List(c.Request.Context(), GetActor(c), limit)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": tenders})
}

// Search GET /api/v1/tenders/search?q=
func (h *TenderHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		BadRequest(c, "search term is required")
		return
	}
	tenders, err := h.svc.Search(c.Request.Context(), GetActor(c), q)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": tenders})
}

// Get GET /api/v1/tenders/:id
func (h *TenderHandler) Get(c *gin.Context) {
	tender, err := h.svc.Get(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	if tender == nil {
		NotFound(c, "tender not found")
		return
	}
	Success(c, gin.H{"tender": tender})
}

// Update PUT /api/v1/tenders/:id
func (h *TenderHandler) Update(c *gin.Context) {
	var req service.UpdateTenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	tender, err := h.svc.Update(c.Request.Context(), GetActor(c), c.Param("id"), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"tender": tender})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus PUT /api/v1/tenders/:id/status
func (h *TenderHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	tender, err := h.svc.SetStatus(c.Request.Context(), GetActor(c), c.Param("id"), req.Status)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"tender": tender})
}

// Delete DELETE /api/v1/tenders/:id
func (h *TenderHandler) Delete(c *gin.Context) {
	if err := h.svc.MoveToTrash(c.Request.Context(), GetActor(c), c.Param("id")); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Restore POST /api/v1/trash/tenders/:trashId/restore
func (h *TenderHandler) Restore(c *gin.Context) {
	tender, err := h.svc.RestoreFromTrash(c.Request.Context(), GetActor(c), c.Param("trashId"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"tender": tender})
}

// ListTrash GET /api/v1/trash
func (h *TenderHandler) ListTrash(c *gin.Context) {
	recs, err := h.svc.ListTrash(c.Request.Context(), GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": recs})
}

// Stats GET /api/v1/tenders/stats
func (h *TenderHandler) Stats(c *gin.Context) {
	counts, err := h.svc.Stats(c.Request.Context(), GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"counts": counts})
}

type stageItemsRequest struct {
	Items []service.StageItemRequest `json:"items" binding:"required,min=1,dive"`
}

// StageItems POST /api/v1/tenders/items/stage
func (h *TenderHandler) StageItems(c *gin.Context) {
	var req stageItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	staged, err := h.svc.StageItems(c.Request.Context(), GetActor(c), req.Items)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"staged": staged})
}

// MergeStaged POST /api/v1/tenders/:id/items/merge
func (h *TenderHandler) MergeStaged(c *gin.Context) {
	result, err := h.svc.MergeStaged(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

type quantityRequest struct {
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// UpdateItemQuantity PUT /api/v1/tenders/:id/items/:itemId/quantity
func (h *TenderHandler) UpdateItemQuantity(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	err := h.svc.SetItemQuantity(c.Request.Context(), GetActor(c), c.Param("id"), c.Param("itemId"), req.Quantity)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// DeleteItem DELETE /api/v1/tenders/:id/items/:itemId
func (h *TenderHandler) DeleteItem(c *gin.Context) {
	err := h.svc.DeleteItem(c.Request.Context(), GetActor(c), c.Param("id"), c.Param("itemId"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// RefreshPrices POST /api/v1/tenders/:id/items/refresh-prices
func (h *TenderHandler) RefreshPrices(c *gin.Context) {
	changed, err := h.svc.RefreshPrices(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"changed": changed})
}

type competitorRequest struct {
	Name   string  `json:"name" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// AddCompetitor POST /api/v1/tenders/:id/competitors
func (h *TenderHandler) AddCompetitor(c *gin.Context) {
	var req competitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	tender, err := h.svc.AddCompetitor(c.Request.Context(), GetActor(c), c.Param("id"), req.Name, req.Amount)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"tender": tender})
}
