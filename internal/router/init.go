package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-user-graph/internal/container"
	handlers "github.com/oksasatya/go-user-graph/internal/interface/http"
	"github.com/oksasatya/go-user-graph/internal/router/modules"
)

// InitModules wires every feature module from the container and registers it
// with the router registry. Call once during startup.
func InitModules(r *Registry, c *container.Container) {
	r.Engine.GET("/health", health(c))

	follow := handlers.NewFollowHandler(c.Follow, c.Logger)
	users := handlers.NewUserHandler(c.Profile, c.Logger)

	r.Add(modules.NewUserModule(users, follow, c.JWT, c.Redis, c.Config.RateLimitFollowPerMin))
	if c.Config.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(c.Redis))
	}
}

func health(c *container.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status := gin.H{"status": "ok", "store": c.Config.StoreDriver}
		if c.Redis != nil {
			pctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
			defer cancel()
			if err := c.Redis.Ping(pctx).Err(); err != nil {
				status["status"] = "degraded"
				status["redis"] = err.Error()
				ctx.JSON(http.StatusServiceUnavailable, status)
				return
			}
			status["redis"] = "ok"
		}
		ctx.JSON(http.StatusOK, status)
	}
}
