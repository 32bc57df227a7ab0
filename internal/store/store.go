// Package store persists user documents and their embedded rounds.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"speedgolf/internal/models"
)

var (
	// ErrNotFound is returned when no user or round matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an account identifier is already taken.
	ErrConflict = errors.New("conflict")
)

// UserUpdate replaces whole profile sections of a user document. Nil sections
// are left untouched. A different AccountData.ID renames the document.
type UserUpdate struct {
	AccountData   *models.AccountData
	IdentityData  *models.IdentityData
	SpeedgolfData *models.SpeedgolfData
}

// UserStore is the persistent store. Every method is a single atomic
// operation on one document.
type UserStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, accountID string) (*models.User, error)
	UpdateUser(ctx context.Context, accountID string, update UserUpdate) (*models.User, error)
	// FindOrCreateOAuthUser returns the existing user with user.AccountData.ID or
	// inserts user. The bool is true when the user was created.
	FindOrCreateOAuthUser(ctx context.Context, user *models.User) (*models.User, bool, error)

	// AppendRound appends a round and increments roundsLogged in one update.
	AppendRound(ctx context.Context, accountID string, fields models.RoundFields) (models.Round, int, error)
	ListRounds(ctx context.Context, accountID string) ([]models.Round, error)
	UpdateRound(ctx context.Context, accountID string, roundID primitive.ObjectID, patch models.RoundPatch) (models.Round, error)
	// DeleteRound removes exactly one round and decrements roundsLogged in one
	// update, returning the new count.
	DeleteRound(ctx context.Context, accountID string, roundID primitive.ObjectID) (int, error)
}
