package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"speedgolf/internal/models"
)

// MemoryStore is an in-process UserStore used for local runs and tests.
// Documents are copied on the way in and on the way out.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

var _ UserStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.User)}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.AccountData.ID]; ok {
		return fmt.Errorf("user %s: %w", user.AccountData.ID, ErrConflict)
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Rounds == nil {
		user.Rounds = []models.Round{}
	}
	s.users[user.AccountData.ID] = user.Clone()
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, accountID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[accountID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}
	out := user.Clone()
	return &out, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, accountID string, update UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[accountID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}

	newID := accountID
	if update.AccountData != nil {
		newID = update.AccountData.ID
	}
	if newID != accountID {
		if _, taken := s.users[newID]; taken {
			return nil, fmt.Errorf("rename %s: %w", accountID, ErrConflict)
		}
	}

	if update.AccountData != nil {
		user.AccountData = *update.AccountData
	}
	if update.IdentityData != nil {
		user.IdentityData = *update.IdentityData
	}
	if update.SpeedgolfData != nil {
		user.SpeedgolfData = *update.SpeedgolfData
	}
	user.UpdatedAt = time.Now()

	delete(s.users, accountID)
	s.users[newID] = user.Clone()

	out := user.Clone()
	return &out, nil
}

func (s *MemoryStore) FindOrCreateOAuthUser(_ context.Context, user *models.User) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.AccountData.ID]; ok {
		out := existing.Clone()
		return &out, false, nil
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Rounds == nil {
		user.Rounds = []models.Round{}
	}
	s.users[user.AccountData.ID] = user.Clone()
	out := user.Clone()
	return &out, true, nil
}

func (s *MemoryStore) AppendRound(_ context.Context, accountID string, fields models.RoundFields) (models.Round, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[accountID]
	if !ok {
		return models.Round{}, 0, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}

	round := models.Round{ID: primitive.NewObjectID(), RoundFields: fields}
	user = user.Clone()
	user.Rounds = append(user.Rounds, round)
	user.RoundsLogged++
	user.UpdatedAt = time.Now()
	s.users[accountID] = user

	return round, user.RoundsLogged, nil
}

func (s *MemoryStore) ListRounds(_ context.Context, accountID string) ([]models.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[accountID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}
	rounds := make([]models.Round, len(user.Rounds))
	copy(rounds, user.Rounds)
	return rounds, nil
}

func (s *MemoryStore) UpdateRound(_ context.Context, accountID string, roundID primitive.ObjectID, patch models.RoundPatch) (models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[accountID]
	if !ok {
		return models.Round{}, fmt.Errorf("round %s: %w", roundID.Hex(), ErrNotFound)
	}
	idx := user.RoundIndex(roundID)
	if idx < 0 {
		return models.Round{}, fmt.Errorf("round %s: %w", roundID.Hex(), ErrNotFound)
	}

	user = user.Clone()
	patch.Apply(&user.Rounds[idx].RoundFields)
	user.UpdatedAt = time.Now()
	s.users[accountID] = user

	return user.Rounds[idx], nil
}

func (s *MemoryStore) DeleteRound(_ context.Context, accountID string, roundID primitive.ObjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[accountID]
	if !ok {
		return 0, fmt.Errorf("round %s: %w", roundID.Hex(), ErrNotFound)
	}
	idx := user.RoundIndex(roundID)
	if idx < 0 {
		return 0, fmt.Errorf("round %s: %w", roundID.Hex(), ErrNotFound)
	}

	rounds := make([]models.Round, 0, len(user.Rounds)-1)
	rounds = append(rounds, user.Rounds[:idx]...)
	rounds = append(rounds, user.Rounds[idx+1:]...)
	user = user.Clone()
	user.Rounds = rounds
	if user.RoundsLogged > 0 {
		user.RoundsLogged--
	}
	user.UpdatedAt = time.Now()
	s.users[accountID] = user

	return user.RoundsLogged, nil
}
