package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/identity"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

type ObservedDirectory interface {
	List(ctx context.Context, p identity.ListParams) (*models.ObservedPage, models.ObservedQuery, error)
}

type ObservedGetter interface {
	GetObserved(ctx context.Context, id uuid.UUID) (*models.ObservedIdentity, error)
}

type SnapshotGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type ActionApplier interface {
	Apply(ctx context.Context, id uuid.UUID, action identity.Action) (*identity.ActionResult, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (identity.SweepResult, error)
}

type ObservedHandler struct {
	directory ObservedDirectory
	store     ObservedGetter
	actions   ActionApplier
	sweeper   Sweeper
	// Snapshots is optional; without it the snapshot endpoint returns 404.
	Snapshots SnapshotGetter
}

func NewObservedHandler(directory ObservedDirectory, store ObservedGetter, actions ActionApplier, sweeper Sweeper) *ObservedHandler {
	return &ObservedHandler{directory: directory, store: store, actions: actions, sweeper: sweeper}
}

func (h *ObservedHandler) List(c *gin.Context) {
	var q dto.ObservedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	page, query, err := h.directory.List(c.Request.Context(), identity.ListParams{
		SearchTerm:    q.SearchTerm,
		Page:          q.Page,
		PageSize:      q.PageSize,
		SortField:     q.SortField,
		SortDirection: q.SortDirection,
		FilterType:    q.FilterType,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]dto.ObservedUserResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, observedResponse(&page.Items[i]))
	}
	c.JSON(http.StatusOK, dto.ObservedListResponse{
		Items:          items,
		TotalCount:     page.FilteredTotal,
		Page:           query.Page,
		PageSize:       query.PageSize,
		ObservedCounts: page.Counts,
	})
}

func (h *ObservedHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid observed user id"})
		return
	}
	o, err := h.store.GetObserved(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, observedResponse(o))
}

// Snapshot proxies the last stored face snapshot from the blob store.
func (h *ObservedHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid observed user id"})
		return
	}
	o, err := h.store.GetObserved(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Snapshots == nil || o.FaceImageKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	data, err := h.Snapshots.GetObject(c.Request.Context(), o.FaceImageKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
			return
		}
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Action applies block, extend or register to an observed identity.
func (h *ObservedHandler) Action(c *gin.Context) {
	var req dto.ObservedActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	action, err := identity.ParseAction(req.ActionType)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.actions.Apply(c.Request.Context(), req.ObservedUserID, action)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: res.Message})
}

// Sweep runs one lifecycle sweep immediately.
func (h *ObservedHandler) Sweep(c *gin.Context) {
	res, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SweepResponse{Expired: res.Expired, Skipped: res.Skipped})
}

func observedResponse(o *models.ObservedIdentity) dto.ObservedUserResponse {
	zones := o.LastAccessedZones
	if zones == nil {
		zones = []string{}
	}
	return dto.ObservedUserResponse{
		ID:                        o.ID,
		Status:                    string(o.Status),
		FirstSeenAt:               o.FirstSeenAt.Format(time.RFC3339),
		LastSeenAt:                o.LastSeenAt.Format(time.RFC3339),
		AccessCount:               o.AccessCount,
		ExpiresAt:                 o.ExpiresAt.Format(time.RFC3339),
		AlertTriggered:            o.AlertTriggered,
		ConsecutiveDeniedAccesses: o.ConsecutiveDeniedAccesses,
		PotentialMatchUserID:      o.PotentialMatchUserID,
		LastAccessedZones:         zones,
		HasSnapshot:               o.FaceImageKey != "",
	}
}
