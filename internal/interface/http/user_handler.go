package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	"github.com/oksasatya/go-user-graph/internal/interface/middleware"
	"github.com/oksasatya/go-user-graph/pkg/response"
	"github.com/oksasatya/go-user-graph/pkg/validation"
)

const maxAvatarBytes = 5 << 20

var avatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

type UserHandler struct {
	Svc    *app.ProfileService
	Logger *logrus.Logger
}

func NewUserHandler(svc *app.ProfileService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type socialLinksRequest struct {
	Twitter  *string `json:"twitter" binding:"omitempty,url"`
	LinkedIn *string `json:"linkedin" binding:"omitempty,url"`
	GitHub   *string `json:"github" binding:"omitempty,url"`
	Website  *string `json:"website" binding:"omitempty,url"`
}

type updateProfileRequest struct {
	FullName    *string             `json:"fullName" binding:"omitempty,max=100"`
	Bio         *string             `json:"bio" binding:"omitempty,max=500"`
	SocialLinks *socialLinksRequest `json:"socialLinks"`
	Preferences *entity.Preferences `json:"preferences"`
}

func (r updateProfileRequest) toInput() app.UpdateProfileInput {
	in := app.UpdateProfileInput{
		FullName:    r.FullName,
		Bio:         r.Bio,
		Preferences: r.Preferences,
	}
	if r.SocialLinks != nil {
		in.SocialLinks = &entity.SocialLinks{
			Twitter:  r.SocialLinks.Twitter,
			LinkedIn: r.SocialLinks.LinkedIn,
			GitHub:   r.SocialLinks.GitHub,
			Website:  r.SocialLinks.Website,
		}
	}
	return in
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	h.render(c, c.GetString(middleware.CtxUserIDKey), "profile")
}

// GetUser returns another user's public profile.
func (h *UserHandler) GetUser(c *gin.Context) {
	h.render(c, c.Param("id"), "user")
}

func (h *UserHandler) render(c *gin.Context, id, msg string) {
	p, err := h.Svc.GetProfile(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.Logger, "failed to load profile", err)
		return
	}
	response.Success(c, http.StatusOK, p, msg, nil)
}

// Search looks users up by username, full name or bio (?q=&size=).
func (h *UserHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	hits, err := h.Svc.SearchUsers(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		writeError(c, h.Logger, "search failed", err)
		return
	}
	response.Success(c, http.StatusOK, hits, "users", gin.H{"count": len(hits)})
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	p, err := h.Svc.UpdateProfile(c.Request.Context(), uid, req.toInput())
	if err != nil {
		writeError(c, h.Logger, "failed to update profile", err)
		return
	}
	response.Success(c, http.StatusOK, p, "profile updated", nil)
}

// UploadAvatar accepts a multipart "avatar" file.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarBytes+1<<10)
	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "avatar file is required", nil)
		return
	}
	if fh.Size > maxAvatarBytes {
		response.Error[any](c, http.StatusRequestEntityTooLarge, "avatar too large", gin.H{"max_bytes": maxAvatarBytes})
		return
	}
	contentType := strings.ToLower(fh.Header.Get("Content-Type"))
	if !avatarTypes[contentType] {
		response.Error[any](c, http.StatusUnsupportedMediaType, "unsupported avatar type", gin.H{"content_type": contentType})
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "unreadable avatar file", nil)
		return
	}
	defer func() { _ = f.Close() }()

	url, err := h.Svc.UploadAvatar(c.Request.Context(), uid, f, fh.Filename, contentType)
	if err != nil {
		writeError(c, h.Logger, "failed to upload avatar", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"avatar": url}, "avatar updated", nil)
}

func (h *UserHandler) DeleteProfile(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	if err := h.Svc.DeleteUser(c.Request.Context(), uid); err != nil {
		writeError(c, h.Logger, "failed to delete account", err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"deleted": true}, "account deleted", nil)
}
