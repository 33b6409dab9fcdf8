package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
)

type RouterConfig struct {
	AgentKey string
	AdminKey string

	Resolver  handlers.Resolver
	Directory handlers.ObservedDirectory
	Observed  handlers.ObservedGetter
	Actions   handlers.ActionApplier
	Sweeper   handlers.Sweeper
	Decisions handlers.DecisionLister
	// Snapshots is optional.
	Snapshots handlers.SnapshotGetter
	Checks    []handlers.ReadinessCheck
	Hub       *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// Capture agents
	agent := v1.Group("/access")
	agent.Use(auth.RequireKey(auth.RoleAgent, cfg.AgentKey))
	accessH := handlers.NewAccessHandler(cfg.Resolver)
	agent.POST("/resolve", accessH.Resolve)

	// Operators
	admin := v1.Group("/admin")
	admin.Use(auth.RequireKey(auth.RoleAdmin, cfg.AdminKey))

	observedH := handlers.NewObservedHandler(cfg.Directory, cfg.Observed, cfg.Actions, cfg.Sweeper)
	observedH.Snapshots = cfg.Snapshots
	admin.GET("/observed", observedH.List)
	admin.GET("/observed/:id", observedH.Get)
	admin.GET("/observed/:id/snapshot", observedH.Snapshot)
	admin.POST("/observed/actions", observedH.Action)
	admin.POST("/sweep", observedH.Sweep)

	decisionH := handlers.NewDecisionHandler(cfg.Decisions)
	admin.GET("/decisions", decisionH.List)

	if cfg.Hub != nil {
		admin.GET("/ws", cfg.Hub.HandleWS)
	}

	return r
}
