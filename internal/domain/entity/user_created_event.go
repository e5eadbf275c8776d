package entity

import "time"

// UserCreatedEvent is the payload published by the identity service on the
// user-created topic. Delivery is at-least-once.
type UserCreatedEvent struct {
	ID        string    `json:"id" validate:"userid"`
	Email     string    `json:"email" validate:"required,email"`
	Username  string    `json:"username" validate:"handle"`
	Role      Role      `json:"role" validate:"required,oneof=user editor author admin"`
	Status    Status    `json:"status" validate:"required,oneof=active inactive pending suspended deleted banned"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
}

// NewUserFromEvent builds the initial user record for a creation event:
// empty relationship sets, default preferences, profile fields from the event.
func NewUserFromEvent(ev UserCreatedEvent) *User {
	created := ev.CreatedAt.UTC()
	return &User{
		ID:          ev.ID,
		Email:       ev.Email,
		Username:    ev.Username,
		Role:        ev.Role,
		Status:      ev.Status,
		FullName:    ev.Username,
		Preferences: DefaultPreferences(),
		Followers:   []string{},
		Following:   []string{},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}
