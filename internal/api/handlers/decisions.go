package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

type DecisionLister interface {
	ListDecisions(ctx context.Context, q models.DecisionQuery) ([]models.AccessDecision, int, error)
}

type DecisionHandler struct {
	store DecisionLister
}

func NewDecisionHandler(store DecisionLister) *DecisionHandler {
	return &DecisionHandler{store: store}
}

func (h *DecisionHandler) List(c *gin.Context) {
	var q dto.DecisionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	query := models.DecisionQuery{
		Zone:     q.Zone,
		Decision: models.Decision(q.Decision),
		UserType: models.UserType(q.UserType),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if q.From != "" {
		t, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		query.From = &t
	}
	if q.To != "" {
		t, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		query.To = &t
	}

	decisions, total, err := h.store.ListDecisions(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.DecisionResponse, 0, len(decisions))
	for _, d := range decisions {
		resp = append(resp, dto.NewDecisionResponse(d))
	}
	c.JSON(http.StatusOK, dto.DecisionListResponse{Decisions: resp, Total: total})
}
