// Package user describes the learners the progression engine ranks. Users
// and groups are owned by an upstream service; this package only reads them.
package user

import (
	"context"
	"time"
)

// Role of an account. Only informational here; authorization happens upstream.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// User is a learner account as seen by the progression engine.
type User struct {
	ID          int64
	DisplayName string
	Role        Role
	// CreatedAt breaks leaderboard ties: older accounts rank first.
	CreatedAt time.Time
}

// Directory resolves users and groups. Unknown ids return shared.ErrNotFound.
type Directory interface {
	GetUser(ctx context.Context, userID int64) (User, error)
	// GroupExists reports whether the group is known.
	GroupExists(ctx context.Context, groupID int64) (bool, error)
}
