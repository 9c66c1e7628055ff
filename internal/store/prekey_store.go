package store

import (
	"context"
	"errors"

	"keyrelay/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreKeyStore struct{ db *gorm.DB }

func (s *Store) PreKeys() *PreKeyStore { return &PreKeyStore{db: s.DB} }

func (p *PreKeyStore) AddBatch(ctx context.Context, keys []domain.OneTimePreKey) error {
	if len(keys) == 0 {
		return nil
	}
	return translate(p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&keys).Error)
}

// TakeOne issues the oldest one-time prekey of the device and deletes it in
// the same operation. Returns nil when the pool is empty. Run inside a
// transaction: the locked select keeps two concurrent bundle fetches from
// being handed the same key, and the delete's row count catches anything
// that slips past the lock.
func (p *PreKeyStore) TakeOne(ctx context.Context, principal string, deviceID int) (*domain.OneTimePreKey, error) {
	var key domain.OneTimePreKey
	err := p.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("principal = ? AND device_id = ?", principal, deviceID).
		Order("key_id ASC").
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translate(err)
	}
	tx := p.db.WithContext(ctx).
		Where("principal = ? AND device_id = ? AND key_id = ?", principal, deviceID, key.KeyID).
		Delete(&domain.OneTimePreKey{})
	if tx.Error != nil {
		return nil, translate(tx.Error)
	}
	if tx.RowsAffected == 0 {
		// Lost a race to a caller outside this transaction's lock; treat the
		// pool as empty rather than re-issuing.
		return nil, nil
	}
	return &key, nil
}

func (p *PreKeyStore) CountForDevice(ctx context.Context, principal string, deviceID int) (int64, error) {
	var count int64
	if err := p.db.WithContext(ctx).
		Model(&domain.OneTimePreKey{}).
		Where("principal = ? AND device_id = ?", principal, deviceID).
		Count(&count).Error; err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (p *PreKeyStore) DeleteForDevice(ctx context.Context, principal string, deviceID int) error {
	return translate(p.db.WithContext(ctx).
		Where("principal = ? AND device_id = ?", principal, deviceID).
		Delete(&domain.OneTimePreKey{}).Error)
}
