package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/internal/interface/middleware"
	"github.com/oksasatya/go-user-graph/pkg/response"
)

type FollowHandler struct {
	Svc    *app.FollowService
	Logger *logrus.Logger
}

func NewFollowHandler(svc *app.FollowService, logger *logrus.Logger) *FollowHandler {
	return &FollowHandler{Svc: svc, Logger: logger}
}

// Follow makes the caller follow :id.
func (h *FollowHandler) Follow(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	target := c.Param("id")
	if err := h.Svc.Follow(c.Request.Context(), uid, target); err != nil {
		writeError(c, h.Logger, "failed to follow user", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"following": true, "targetId": target}, "followed", nil)
}

// Unfollow removes the caller's follow of :id. Unfollowing someone not
// followed succeeds.
func (h *FollowHandler) Unfollow(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	target := c.Param("id")
	if err := h.Svc.Unfollow(c.Request.Context(), uid, target); err != nil {
		writeError(c, h.Logger, "failed to unfollow user", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"following": false, "targetId": target}, "unfollowed", nil)
}

func (h *FollowHandler) Followers(c *gin.Context) {
	list, err := h.Svc.GetFollowers(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.Logger, "failed to list followers", err)
		return
	}
	response.Success(c, http.StatusOK, list, "followers", gin.H{"count": len(list)})
}

func (h *FollowHandler) Following(c *gin.Context) {
	list, err := h.Svc.GetFollowing(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.Logger, "failed to list following", err)
		return
	}
	response.Success(c, http.StatusOK, list, "following", gin.H{"count": len(list)})
}
