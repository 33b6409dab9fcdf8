package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/identity"
	"github.com/your-org/facegate/pkg/dto"
)

// maxSnapshotBytes bounds the decoded snapshot attached to a resolve request.
const maxSnapshotBytes = 2 << 20

type Resolver interface {
	Resolve(ctx context.Context, req identity.Request) identity.Outcome
}

type AccessHandler struct {
	resolver Resolver
}

func NewAccessHandler(resolver Resolver) *AccessHandler {
	return &AccessHandler{resolver: resolver}
}

// Resolve classifies one face embedding and returns the access decision.
func (h *AccessHandler) Resolve(c *gin.Context) {
	var req dto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	var snapshot []byte
	if req.Snapshot != "" {
		data, err := base64.StdEncoding.DecodeString(req.Snapshot)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot must be base64"})
			return
		}
		if len(data) > maxSnapshotBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot too large"})
			return
		}
		snapshot = data
	}

	out := h.resolver.Resolve(c.Request.Context(), identity.Request{
		Embedding: req.FaceEmbedding,
		Zone:      req.Zone,
		Snapshot:  snapshot,
	})

	resp := dto.ResolveResponse{
		Decision:    string(out.Decision()),
		MatchStatus: string(out.MatchStatus()),
		Reason:      out.Reason(),
	}
	switch o := out.(type) {
	case *identity.RegisteredOutcome:
		resp.MatchedUser = &dto.MatchedUser{
			ID:          o.Identity.ID,
			FullName:    o.Identity.FullName,
			RoleName:    o.Identity.RoleName,
			StatusName:  o.Identity.StatusName,
			AccessZones: o.Identity.AccessZones,
			Distance:    o.Distance,
		}
		resp.ConfidenceScore = o.Similarity()
	case *identity.ObservedOutcome:
		resp.ObservedUser = &dto.ObservedUser{
			ID:         o.Identity.ID,
			StatusName: string(o.Identity.Status),
			Distance:   o.Distance,
			ExpiresAt:  o.Identity.ExpiresAt.Format(time.RFC3339),
		}
		resp.ConfidenceScore = o.Similarity()
	case *identity.NoMatchOutcome:
	case *identity.ErrorOutcome:
		status := statusFor(o.Err)
		if status == http.StatusBadRequest {
			c.JSON(status, gin.H{"error": o.Err.Error()})
			return
		}
		// Agents treat an empty body as "no decision"; the door stays shut.
		c.JSON(http.StatusServiceUnavailable, gin.H{})
		return
	}
	c.JSON(http.StatusOK, resp)
}
