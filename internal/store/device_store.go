package store

import (
	"context"
	"time"

	"keyrelay/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceStore struct{ db *gorm.DB }

func (s *Store) Devices() *DeviceStore { return &DeviceStore{db: s.DB} }

// NextID bumps the principal's device-id sequence and returns the new value.
// The conflict-update takes a row lock on the sequence row, so concurrent
// registrations for the same principal serialize here.
func (d *DeviceStore) NextID(ctx context.Context, principal string) (int, error) {
	seq := domain.PrincipalSequence{Principal: principal, LastDeviceID: 1}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "principal"}},
			DoUpdates: clause.Assignments(map[string]any{"last_device_id": gorm.Expr("last_device_id + 1")}),
		}).
		Create(&seq).Error
	if err != nil {
		return 0, translate(err)
	}
	if err := d.db.WithContext(ctx).First(&seq, "principal = ?", principal).Error; err != nil {
		return 0, translate(err)
	}
	return seq.LastDeviceID, nil
}

func (d *DeviceStore) Create(ctx context.Context, device *domain.Device) error {
	return translate(d.db.WithContext(ctx).Create(device).Error)
}

func (d *DeviceStore) Get(ctx context.Context, principal string, deviceID int) (*domain.Device, error) {
	var device domain.Device
	if err := d.db.WithContext(ctx).
		First(&device, "principal = ? AND device_id = ?", principal, deviceID).Error; err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

// ListByPrincipal returns the principal's devices ordered by device id.
func (d *DeviceStore) ListByPrincipal(ctx context.Context, principal string) ([]domain.Device, error) {
	var devices []domain.Device
	if err := d.db.WithContext(ctx).
		Where("principal = ?", principal).
		Order("device_id ASC").
		Find(&devices).Error; err != nil {
		return nil, translate(err)
	}
	return devices, nil
}

// ListNewestFirst orders by creation time for pruning decisions; device id
// breaks ties so the order is stable when registrations land in one second.
func (d *DeviceStore) ListNewestFirst(ctx context.Context, principal string) ([]domain.Device, error) {
	var devices []domain.Device
	if err := d.db.WithContext(ctx).
		Where("principal = ?", principal).
		Order("created_at DESC, device_id DESC").
		Find(&devices).Error; err != nil {
		return nil, translate(err)
	}
	return devices, nil
}

func (d *DeviceStore) UpdateSignedPreKey(ctx context.Context, principal string, deviceID, keyID int, publicKey, signature string, at time.Time) error {
	tx := d.db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("principal = ? AND device_id = ?", principal, deviceID).
		Updates(map[string]any{
			"signed_pre_key_id":         keyID,
			"signed_pre_key_public":     publicKey,
			"signed_pre_key_signature":  signature,
			"signed_pre_key_updated_at": at,
		})
	if tx.Error != nil {
		return translate(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (d *DeviceStore) TouchLastSeen(ctx context.Context, principal string, deviceID int, at time.Time) error {
	return translate(d.db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("principal = ? AND device_id = ?", principal, deviceID).
		Update("last_seen_at", at).Error)
}

// Delete removes the device row. It reports ErrRecordNotFound when nothing
// matched so callers can distinguish already-absent from deleted.
func (d *DeviceStore) Delete(ctx context.Context, principal string, deviceID int) error {
	tx := d.db.WithContext(ctx).
		Where("principal = ? AND device_id = ?", principal, deviceID).
		Delete(&domain.Device{})
	if tx.Error != nil {
		return translate(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
