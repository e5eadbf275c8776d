package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/go-user-graph/internal/interface/http"
	"github.com/oksasatya/go-user-graph/internal/interface/middleware"
	"github.com/oksasatya/go-user-graph/pkg/helpers"
)

// UserModule wires the profile and follow-graph handlers.
// All routes require a bearer token and sit under the given group (usually /api):
//
//	GET    /profile                 PATCH /profile          DELETE /profile
//	POST   /profile/avatar
//	GET    /users/search            GET   /users/:id
//	POST   /users/:id/follow        DELETE /users/:id/follow
//	GET    /users/:id/followers     GET   /users/:id/following
type UserModule struct {
	Users        *handlers.UserHandler
	Follow       *handlers.FollowHandler
	JWT          *helpers.JWTManager
	Redis        *redis.Client
	FollowPerMin int
}

func NewUserModule(users *handlers.UserHandler, follow *handlers.FollowHandler, jwt *helpers.JWTManager, rdb *redis.Client, followPerMin int) *UserModule {
	return &UserModule{Users: users, Follow: follow, JWT: jwt, Redis: rdb, FollowPerMin: followPerMin}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/")
	auth.Use(middleware.JWTAuth(m.JWT))
	auth.Use(
		middleware.RateLimit(m.Redis, 300, time.Minute, middleware.KeyByIP(), nil),
		middleware.RateLimit(m.Redis, 120, time.Minute, middleware.KeyByUserID(), nil),
	)

	auth.GET("/profile", m.Users.GetProfile)
	auth.PATCH("/profile", m.Users.UpdateProfile)
	auth.DELETE("/profile", m.Users.DeleteProfile)
	auth.POST("/profile/avatar", m.Users.UploadAvatar)

	auth.GET("/users/search", m.Users.Search)
	auth.GET("/users/:id", m.Users.GetUser)
	auth.GET("/users/:id/followers", m.Follow.Followers)
	auth.GET("/users/:id/following", m.Follow.Following)

	followLimiter := middleware.RateLimit(m.Redis, m.FollowPerMin, time.Minute, middleware.KeyByUserAndPath(), nil)
	auth.POST("/users/:id/follow", followLimiter, m.Follow.Follow)
	auth.DELETE("/users/:id/follow", followLimiter, m.Follow.Unfollow)
}
