package entity

import (
	"slices"
	"time"
)

// Role is the authorization role assigned by the identity service.
type Role string

const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

// Status is the account status assigned by the identity service.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
	StatusBanned    Status = "banned"
)

// RelationField names one side of the follow graph stored on a user record.
type RelationField string

const (
	FieldFollowers RelationField = "followers"
	FieldFollowing RelationField = "following"
)

func (f RelationField) Valid() bool {
	return f == FieldFollowers || f == FieldFollowing
}

type SocialLinks struct {
	Twitter  *string `json:"twitter"`
	LinkedIn *string `json:"linkedin"`
	GitHub   *string `json:"github"`
	Website  *string `json:"website"`
}

type Preferences struct {
	EmailNotifications bool `json:"emailNotifications"`
	MarketingUpdates   bool `json:"marketingUpdates"`
	TwoFactorAuth      bool `json:"twoFactorAuth"`
}

// DefaultPreferences are applied to every newly materialized user.
func DefaultPreferences() Preferences {
	return Preferences{EmailNotifications: true}
}

// User is the aggregate root of the profile directory.
//
// Followers holds the ids of users following this user, Following the ids
// this user follows. Both behave as sets and are only mutated through the
// repository's atomic set operations.
type User struct {
	ID          string
	Email       string
	Username    string
	Role        Role
	Status      Status
	FullName    string
	AvatarURL   string
	Bio         string
	SocialLinks SocialLinks
	Preferences Preferences
	Followers   []string
	Following   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsFollowing reports whether u follows id.
func (u *User) IsFollowing(id string) bool {
	return slices.Contains(u.Following, id)
}

// HasFollower reports whether id follows u.
func (u *User) HasFollower(id string) bool {
	return slices.Contains(u.Followers, id)
}

// Relation returns the id set stored under field.
func (u *User) Relation(field RelationField) []string {
	if field == FieldFollowers {
		return u.Followers
	}
	return u.Following
}

// Clone returns a deep copy so callers never share slices with a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Followers = slices.Clone(u.Followers)
	c.Following = slices.Clone(u.Following)
	if c.Followers == nil {
		c.Followers = []string{}
	}
	if c.Following == nil {
		c.Following = []string{}
	}
	return &c
}

// ProfileUpdate carries the editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	FullName    *string
	Bio         *string
	SocialLinks *SocialLinks
	Preferences *Preferences
	AvatarURL   *string
}

func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Bio == nil && p.SocialLinks == nil && p.Preferences == nil && p.AvatarURL == nil
}

// FollowUser is the compact view returned by follower/following listings.
type FollowUser struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatar"`
}
