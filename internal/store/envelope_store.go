package store

import (
	"context"
	"time"

	"keyrelay/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnvelopeStore struct{ db *gorm.DB }

func (s *Store) Envelopes() *EnvelopeStore { return &EnvelopeStore{db: s.DB} }

// UpsertBatch writes one envelope per target device. Re-submission for the
// same (message, target principal, target device) overwrites the payload.
func (e *EnvelopeStore) UpsertBatch(ctx context.Context, envelopes []domain.CiphertextEnvelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	return translate(e.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "message_id"},
				{Name: "target_principal"},
				{Name: "target_device_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"sender_principal", "sender_device_id", "ciphertext", "message_type", "created_at",
			}),
		}).
		Create(&envelopes).Error)
}

func (e *EnvelopeStore) Get(ctx context.Context, messageID, principal string, deviceID int) (*domain.CiphertextEnvelope, error) {
	var env domain.CiphertextEnvelope
	if err := e.db.WithContext(ctx).
		First(&env, "message_id = ? AND target_principal = ? AND target_device_id = ?",
			messageID, principal, deviceID).Error; err != nil {
		return nil, translate(err)
	}
	return &env, nil
}

func (e *EnvelopeStore) ListByMessage(ctx context.Context, messageID string) ([]domain.CiphertextEnvelope, error) {
	var envs []domain.CiphertextEnvelope
	if err := e.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("target_principal ASC, target_device_id ASC").
		Find(&envs).Error; err != nil {
		return nil, translate(err)
	}
	return envs, nil
}

// DeleteOlderThan is the retention sweep. Envelopes are never deleted on
// fetch, so age is the only thing that bounds the mailbox.
func (e *EnvelopeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := e.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.CiphertextEnvelope{})
	if tx.Error != nil {
		return 0, translate(tx.Error)
	}
	return tx.RowsAffected, nil
}
