package application

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	repo "github.com/oksasatya/go-user-graph/internal/domain/repository"
)

// Profile is the public view of a user with follow counts instead of the
// raw relationship sets.
type Profile struct {
	ID             string             `json:"id"`
	Email          string             `json:"email"`
	Username       string             `json:"username"`
	Role           entity.Role        `json:"role"`
	Status         entity.Status      `json:"status"`
	FullName       string             `json:"fullName"`
	AvatarURL      string             `json:"avatar"`
	Bio            string             `json:"bio"`
	SocialLinks    entity.SocialLinks `json:"socialLinks"`
	Preferences    entity.Preferences `json:"preferences"`
	FollowersCount int                `json:"followersCount"`
	FollowingCount int                `json:"followingCount"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

func toProfile(u *entity.User) *Profile {
	return &Profile{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		Role:           u.Role,
		Status:         u.Status,
		FullName:       u.FullName,
		AvatarURL:      u.AvatarURL,
		Bio:            u.Bio,
		SocialLinks:    u.SocialLinks,
		Preferences:    u.Preferences,
		FollowersCount: len(u.Followers),
		FollowingCount: len(u.Following),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

type ProfileService struct {
	Repo     repo.UserRepository
	Indexer  UserIndexer
	Searcher UserSearcher
	Uploader ObjectUploader
	Logger   *logrus.Logger
}

func NewProfileService(repo repo.UserRepository, indexer UserIndexer, searcher UserSearcher, uploader ObjectUploader, logger *logrus.Logger) *ProfileService {
	return &ProfileService{Repo: repo, Indexer: indexer, Searcher: searcher, Uploader: uploader, Logger: orDiscard(logger)}
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, transient("load user", err)
	}
	return toProfile(u), nil
}

type UpdateProfileInput struct {
	FullName    *string
	Bio         *string
	SocialLinks *entity.SocialLinks
	Preferences *entity.Preferences
}

// UpdateProfile applies the editable fields. Blank strings are ignored and at
// least one field has to remain.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*Profile, error) {
	upd := entity.ProfileUpdate{
		FullName:    trimmed(in.FullName),
		Bio:         trimmed(in.Bio),
		SocialLinks: in.SocialLinks,
		Preferences: in.Preferences,
	}
	if upd.Empty() {
		return nil, fmt.Errorf("at least one valid field is required: %w", ErrInvalidOperation)
	}
	u, err := s.Repo.UpdateProfile(ctx, userID, upd)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, transient("update profile", err)
	}
	s.reindex(ctx, u)
	return toProfile(u), nil
}

// UploadAvatar stores the image under avatars/<user>/ and records its URL.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID string, r io.Reader, filename, contentType string) (string, error) {
	if _, err := s.Repo.GetByID(ctx, userID); err != nil {
		if isNotFound(err) {
			return "", ErrUserNotFound
		}
		return "", transient("load user", err)
	}
	if s.Uploader == nil {
		return "", fmt.Errorf("avatar storage not configured: %w", ErrUnavailable)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", userID, uuid.NewString()+ext))
	url, err := s.Uploader.Upload(ctx, objectPath, contentType, r)
	if err != nil {
		return "", transient("upload avatar", err)
	}
	u, err := s.Repo.UpdateProfile(ctx, userID, entity.ProfileUpdate{AvatarURL: &url})
	if err != nil {
		if isNotFound(err) {
			return "", ErrUserNotFound
		}
		return "", transient("store avatar url", err)
	}
	s.reindex(ctx, u)
	return url, nil
}

// DeleteUser removes the record only. Ids held in other users' sets become
// tombstones that the Auditor cleans up.
func (s *ProfileService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.Repo.Delete(ctx, userID); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return transient("delete user", err)
	}
	if s.Indexer != nil {
		if err := s.Indexer.Remove(ctx, userID); err != nil {
			s.Logger.WithError(err).WithField("user_id", userID).Warn("search delete failed")
		}
	}
	s.Logger.WithField("user_id", userID).Info("user deleted")
	return nil
}

// SearchUsers queries the search index. Without one configured it returns
// an empty result.
func (s *ProfileService) SearchUsers(ctx context.Context, q string, size int) ([]entity.FollowUser, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("query is required: %w", ErrInvalidOperation)
	}
	if s.Searcher == nil {
		return []entity.FollowUser{}, nil
	}
	hits, err := s.Searcher.Search(ctx, q, size)
	if err != nil {
		return nil, transient("search users", err)
	}
	return hits, nil
}

func (s *ProfileService) reindex(ctx context.Context, u *entity.User) {
	if s.Indexer == nil {
		return
	}
	if err := s.Indexer.Index(ctx, u); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("search index failed")
	}
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
