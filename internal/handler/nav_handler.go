package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/awraqsoft/munaqasat/internal/pending"
)

// NavStateHandler exposes the cross-navigation draft store: opaque
// JSON payloads kept per user under caller-chosen keys, surviving page
// navigation but not sign-out.
type NavStateHandler struct {
	store *pending.Store
}

func NewNavStateHandler(store *pending.Store) *NavStateHandler {
	return &NavStateHandler{store: store}
}

// Get GET /api/v1/nav-state/:key
func (h *NavStateHandler) Get(c *gin.Context) {
	var value json.RawMessage
	found, err := h.store.Get(c.Request.Context(), c.GetString("user_id"), c.Param("key"), &value)
	if err != nil {
		ServiceError(c, err)
		return
	}
	if !found {
		NotFound(c, "no draft under this key")
		return
	}
	Success(c, gin.H{"value": value})
}

// Set PUT /api/v1/nav-state/:key
func (h *NavStateHandler) Set(c *gin.Context) {
	var value json.RawMessage
	if err := c.ShouldBindJSON(&value); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.store.Set(c.Request.Context(), c.GetString("user_id"), c.Param("key"), value); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Clear DELETE /api/v1/nav-state/:key
func (h *NavStateHandler) Clear(c *gin.Context) {
	if err := h.store.Clear(c.Request.Context(), c.GetString("user_id"), c.Param("key")); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Staged GET /api/v1/nav-state (well-known staged line items)
func (h *NavStateHandler) Staged(c *gin.Context) {
	items, err := h.store.PendingItems(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}
