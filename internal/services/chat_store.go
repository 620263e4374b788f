package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/cryptobox"
	"github.com/rohits-web03/nimbus/internal/lock"
	"github.com/rohits-web03/nimbus/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxTurns is how many turns Append and Chat keep.
const MaxTurns = 15

// ChatStore keeps one encrypted transcript per user.
type ChatStore struct {
	db    *gorm.DB
	box   *cryptobox.Box
	locks *lock.Keyed
	log   *zap.Logger
}

func NewChatStore(db *gorm.DB, box *cryptobox.Box, locks *lock.Keyed, log *zap.Logger) *ChatStore {
	return &ChatStore{db: db, box: box, locks: locks, log: log}
}

func chatKey(userID uuid.UUID) string { return "chat:" + userID.String() }

// Load returns the stored transcript. A row that cannot be decrypted or
// parsed reads as empty, only database failures are returned.
func (s *ChatStore) Load(ctx context.Context, userID uuid.UUID) ([]models.Turn, error) {
	turns, _, err := s.load(ctx, userID)
	return turns, err
}

func (s *ChatStore) load(ctx context.Context, userID uuid.UUID) ([]models.Turn, bool, error) {
	var row models.ChatSession
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.Turn{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load chat session: %w", err)
	}

	var raw []json.RawMessage
	if err := s.box.OpenJSON(row.Ciphertext, &raw); err != nil {
		s.log.Warn("unreadable chat session, starting empty",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return []models.Turn{}, true, nil
	}
	return decodeTurns(raw), true, nil
}

// decodeTurns keeps the entries whose role and content are non-empty strings.
func decodeTurns(raw []json.RawMessage) []models.Turn {
	turns := make([]models.Turn, 0, len(raw))
	for _, r := range raw {
		var m map[string]any
		if err := json.Unmarshal(r, &m); err != nil {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		t := models.Turn{Role: role, Content: content}
		if t.Valid() {
			turns = append(turns, t)
		}
	}
	return turns
}

// Update runs a read-modify-write of the user's transcript under the user's
// chat lock. When fn fails nothing is written.
func (s *ChatStore) Update(ctx context.Context, userID uuid.UUID, fn func([]models.Turn) ([]models.Turn, error)) ([]models.Turn, error) {
	turns, _, err := s.update(ctx, userID, func(turns []models.Turn, _ bool) ([]models.Turn, error) {
		return fn(turns)
	})
	return turns, err
}

func (s *ChatStore) update(ctx context.Context, userID uuid.UUID, fn func([]models.Turn, bool) ([]models.Turn, error)) ([]models.Turn, bool, error) {
	unlock := s.locks.Lock(chatKey(userID))
	defer unlock()

	turns, existed, err := s.load(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	next, err := fn(turns, existed)
	if err != nil {
		return nil, existed, err
	}
	if err := s.save(ctx, userID, next); err != nil {
		return nil, existed, err
	}
	return next, existed, nil
}

// Append adds one turn and keeps the most recent MaxTurns.
func (s *ChatStore) Append(ctx context.Context, userID uuid.UUID, turn models.Turn) ([]models.Turn, error) {
	if !turn.Valid() {
		return nil, apperr.Validation("role and content are required")
	}
	return s.Update(ctx, userID, func(turns []models.Turn) ([]models.Turn, error) {
		return lastTurns(append(turns, turn), MaxTurns), nil
	})
}

// Merge appends turns to the stored transcript without truncating. created
// reports whether the user had no transcript before.
func (s *ChatStore) Merge(ctx context.Context, userID uuid.UUID, turns []models.Turn) (created bool, err error) {
	if len(turns) == 0 {
		return false, apperr.Validation("conversation must be a non-empty list")
	}
	for _, t := range turns {
		if !t.Valid() {
			return false, apperr.Validation("every turn needs a role and content")
		}
	}
	_, existed, err := s.update(ctx, userID, func(old []models.Turn, _ bool) ([]models.Turn, error) {
		merged := make([]models.Turn, 0, len(old)+len(turns))
		return append(append(merged, old...), turns...), nil
	})
	if err != nil {
		return false, err
	}
	return !existed, nil
}

// Reset drops the transcript. A missing row is fine.
func (s *ChatStore) Reset(ctx context.Context, userID uuid.UUID) error {
	unlock := s.locks.Lock(chatKey(userID))
	defer unlock()

	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.ChatSession{}).Error; err != nil {
		return fmt.Errorf("reset chat session: %w", err)
	}
	return nil
}

func (s *ChatStore) save(ctx context.Context, userID uuid.UUID, turns []models.Turn) error {
	if turns == nil {
		turns = []models.Turn{}
	}
	sealed, err := s.box.SealJSON(turns)
	if err != nil {
		return fmt.Errorf("seal chat session: %w", err)
	}
	row := models.ChatSession{UserID: userID, Ciphertext: sealed}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save chat session: %w", err)
	}
	return nil
}

func lastTurns(turns []models.Turn, n int) []models.Turn {
	if len(turns) <= n {
		return turns
	}
	return append([]models.Turn(nil), turns[len(turns)-n:]...)
}
