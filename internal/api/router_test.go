package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/identity"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

const (
	agentKey = "agent-secret"
	adminKey = "admin-secret"
)

type testServer struct {
	router *gin.Engine
	store  *storage.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewMemoryStore(3)
	cfg := identity.ResolverConfig{
		EmbeddingDim:            3,
		RegisteredThreshold:     0.15,
		ObservedThreshold:       0.08,
		PotentialMatchThreshold: 0.35,
		TTL:                     7 * 24 * time.Hour,
		QueryTimeout:            time.Second,
		EligibleStatuses:        []string{"active"},
		AutoEnroll:              true,
	}
	router := NewRouter(RouterConfig{
		AgentKey:  agentKey,
		AdminKey:  adminKey,
		Resolver:  identity.NewResolver(cfg, store, store, store, identity.NewDecisionLogger(store)),
		Directory: identity.NewDirectory(store, 3),
		Observed:  store,
		Actions:   identity.NewActionHandler(store, 7*24*time.Hour),
		Sweeper:   identity.NewSweeper(store, nil, time.Minute, time.Minute),
		Decisions: store,
		Checks: []handlers.ReadinessCheck{
			{Name: "datastore", Ping: store.Ping},
		},
	})
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestResolveEndpoint(t *testing.T) {
	s := newTestServer(t)
	reg := s.store.AddRegistered(models.RegisteredIdentity{
		FullName:    "Grace Hopper",
		RoleName:    "staff",
		StatusName:  "active",
		AccessZones: []string{"lobby"},
		Embedding:   []float32{1, 0, 0},
	})

	w := s.do(t, http.MethodPost, "/v1/access/resolve", agentKey,
		dto.ResolveRequest{FaceEmbedding: []float32{1, 0, 0}, Zone: "lobby"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.ResolveResponse](t, w)
	require.NotNil(t, resp.MatchedUser)
	assert.Nil(t, resp.ObservedUser)
	assert.Equal(t, reg.ID, resp.MatchedUser.ID)
	assert.Equal(t, "Grace Hopper", resp.MatchedUser.FullName)
	assert.Equal(t, "granted", resp.Decision)

	w = s.do(t, http.MethodPost, "/v1/access/resolve", agentKey,
		dto.ResolveRequest{FaceEmbedding: []float32{0, 1, 0}, Zone: "lobby"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.ResolveResponse](t, w)
	require.NotNil(t, resp.ObservedUser)
	assert.Equal(t, "active_temporal", resp.ObservedUser.StatusName)
	assert.Equal(t, string(models.MatchNewObserved), resp.MatchStatus)
}

func TestResolveEndpoint_Errors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/access/resolve", "", dto.ResolveRequest{FaceEmbedding: []float32{1, 0, 0}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/access/resolve", adminKey, dto.ResolveRequest{FaceEmbedding: []float32{1, 0, 0}})
	assert.Equal(t, http.StatusForbidden, w.Code, "admin key is not an agent key")

	w = s.do(t, http.MethodPost, "/v1/access/resolve", agentKey, dto.ResolveRequest{FaceEmbedding: []float32{1, 0}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/access/resolve", agentKey, map[string]any{"zone": "lobby"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/access/resolve", agentKey,
		dto.ResolveRequest{FaceEmbedding: []float32{1, 0, 0}, Snapshot: "%%%"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type downResolver struct{}

func (downResolver) Resolve(context.Context, identity.Request) identity.Outcome {
	return &identity.ErrorOutcome{Err: fmt.Errorf("match: %w: %w", models.ErrDatastoreUnavailable, errors.New("db down"))}
}

func TestResolveEndpoint_DatastoreDownReturnsEmpty503(t *testing.T) {
	router := NewRouter(RouterConfig{Resolver: downResolver{}})

	body, _ := json.Marshal(dto.ResolveRequest{FaceEmbedding: []float32{1, 0, 0}})
	req := httptest.NewRequest(http.MethodPost, "/v1/access/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestObservedAdminFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/access/resolve", agentKey,
		dto.ResolveRequest{FaceEmbedding: []float32{0, 0, 1}, Zone: "dock"})
	require.Equal(t, http.StatusOK, w.Code)
	id := decode[dto.ResolveResponse](t, w).ObservedUser.ID

	w = s.do(t, http.MethodGet, "/v1/admin/observed?filterType=activeTemporal&sortField=accessCount", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[dto.ObservedListResponse](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, id, list.Items[0].ID)
	assert.Equal(t, []string{"dock"}, list.Items[0].LastAccessedZones)
	assert.Equal(t, 1, list.AbsoluteTotal)
	assert.Equal(t, 1, list.ActiveTemporal)
	assert.Equal(t, 20, list.PageSize)

	w = s.do(t, http.MethodGet, "/v1/admin/observed?sortField=embedding", adminKey, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/admin/observed/"+id.String(), adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active_temporal", decode[dto.ObservedUserResponse](t, w).Status)

	w = s.do(t, http.MethodGet, "/v1/admin/observed/"+id.String()+"/snapshot", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/v1/admin/observed/actions", adminKey,
		dto.ObservedActionRequest{ObservedUserID: id, ActionType: "block"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Observed user blocked", decode[dto.MessageResponse](t, w).Message)

	w = s.do(t, http.MethodPost, "/v1/admin/observed/actions", adminKey,
		dto.ObservedActionRequest{ObservedUserID: id, ActionType: "register"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/v1/admin/observed/actions", adminKey,
		dto.ObservedActionRequest{ObservedUserID: id, ActionType: "teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/admin/observed/actions", adminKey,
		dto.ObservedActionRequest{ObservedUserID: uuid.New(), ActionType: "block"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/admin/observed/"+uuid.NewString(), adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/admin/observed", agentKey, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSweepAndDecisionEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.store.PutObserved(models.ObservedIdentity{
		ID:        uuid.New(),
		Embedding: []float32{1, 1, 1},
		Status:    models.ObservedStatusActiveTemporal,
		ExpiresAt: time.Now().Add(-time.Hour),
	})

	w := s.do(t, http.MethodPost, "/v1/admin/sweep", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[dto.SweepResponse](t, w).Expired)

	for _, zone := range []string{"lobby", "dock"} {
		w = s.do(t, http.MethodPost, "/v1/access/resolve", agentKey,
			dto.ResolveRequest{FaceEmbedding: []float32{1, 0, 0}, Zone: zone})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/admin/decisions?zone=dock", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.DecisionListResponse](t, w)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Decisions, 1)
	assert.Equal(t, "dock", list.Decisions[0].Zone)
	assert.Equal(t, "observed", list.Decisions[0].UserType)

	w = s.do(t, http.MethodGet, "/v1/admin/decisions?from=yesterday", adminKey, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"datastore":"ok"`)

	router := NewRouter(RouterConfig{Checks: []handlers.ReadinessCheck{
		{Name: "nats", Ping: func(context.Context) error { return errors.New("not connected") }},
	}})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
