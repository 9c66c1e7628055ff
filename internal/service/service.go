package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keyrelay/internal/domain"
	"keyrelay/internal/dto"
	"keyrelay/internal/store"
)

// Service implements the key-distribution and ciphertext fan-out operations.
// Every write runs inside one store transaction; the caller's principal is
// resolved by the auth boundary before any method here is invoked and is
// trusted as-is.
type Service struct {
	store     *store.Store
	keepCount int
	now       func() time.Time
}

// New builds a Service. keepCount bounds devices per principal during
// registration; values below 1 fall back to the default of 2.
func New(st *store.Store, keepCount int) *Service {
	if keepCount < 1 {
		keepCount = 2
	}
	return &Service{store: st, keepCount: keepCount, now: time.Now}
}

// RegisterDevice assigns the principal's next device identifier, stores the
// device row and its one-time prekeys, and prunes old devices first so the
// registry cannot grow unbounded when clients re-register on every start.
func (s *Service) RegisterDevice(ctx context.Context, principal, userAgent string, req dto.RegisterDeviceRequest) (dto.RegisterDeviceResponse, error) {
	if principal == "" {
		return dto.RegisterDeviceResponse{}, fmt.Errorf("%w: missing principal", ErrInvalidRequest)
	}
	if req.RegistrationID == 0 || req.IdentityKeyPublic == "" || req.SignedPreKey.PublicKey == "" || req.SignedPreKey.Signature == "" {
		return dto.RegisterDeviceResponse{}, fmt.Errorf("%w: missing key material", ErrInvalidRequest)
	}
	for _, k := range req.PreKeys {
		if k.PublicKey == "" {
			return dto.RegisterDeviceResponse{}, fmt.Errorf("%w: one-time prekey missing publicKey", ErrInvalidRequest)
		}
	}

	name := DeviceNameFromUserAgent(userAgent)
	now := s.now().UTC()

	var deviceID int
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := s.pruneLocked(ctx, tx, principal, s.keepCount); err != nil {
			return err
		}
		id, err := tx.Devices().NextID(ctx, principal)
		if err != nil {
			return err
		}
		deviceID = id
		device := domain.Device{
			Principal:             principal,
			DeviceID:              deviceID,
			DeviceName:            name,
			RegistrationID:        req.RegistrationID,
			IdentityKeyPublic:     req.IdentityKeyPublic,
			SignedPreKeyID:        req.SignedPreKey.KeyID,
			SignedPreKeyPublic:    req.SignedPreKey.PublicKey,
			SignedPreKeySignature: req.SignedPreKey.Signature,
			SignedPreKeyUpdatedAt: now,
			CreatedAt:             now,
			LastSeenAt:            now,
		}
		if err := tx.Devices().Create(ctx, &device); err != nil {
			return err
		}
		return tx.PreKeys().AddBatch(ctx, prekeyRows(principal, deviceID, req.PreKeys, now))
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return dto.RegisterDeviceResponse{}, ErrDeviceConflict
		}
		return dto.RegisterDeviceResponse{}, err
	}

	return dto.RegisterDeviceResponse{DeviceID: deviceID, DeviceName: name}, nil
}

// ListDevices returns every device of a principal ordered by device id. Used
// both for self-inspection and by an initiator discovering fan-out targets.
func (s *Service) ListDevices(ctx context.Context, principal string) (dto.ListDevicesResponse, error) {
	devices, err := s.store.Devices().ListByPrincipal(ctx, principal)
	if err != nil {
		return dto.ListDevicesResponse{}, err
	}
	resp := dto.ListDevicesResponse{Devices: make([]dto.DeviceInfo, 0, len(devices))}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, deviceInfo(d))
	}
	return resp, nil
}

// RotateSignedPreKey overwrites the device's signed prekey in place. The
// device identifier does not change; a rotation may carry replacement
// one-time prekeys alongside.
func (s *Service) RotateSignedPreKey(ctx context.Context, principal string, deviceID int, req dto.RotateSignedPreKeyRequest) (dto.RotateSignedPreKeyResponse, error) {
	if req.SignedPreKey.PublicKey == "" || req.SignedPreKey.Signature == "" {
		return dto.RotateSignedPreKeyResponse{}, fmt.Errorf("%w: missing signed prekey", ErrInvalidRequest)
	}
	for _, k := range req.PreKeys {
		if k.PublicKey == "" {
			return dto.RotateSignedPreKeyResponse{}, fmt.Errorf("%w: one-time prekey missing publicKey", ErrInvalidRequest)
		}
	}

	now := s.now().UTC()
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		err := tx.Devices().UpdateSignedPreKey(ctx, principal, deviceID,
			req.SignedPreKey.KeyID, req.SignedPreKey.PublicKey, req.SignedPreKey.Signature, now)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return ErrDeviceNotFound
			}
			return err
		}
		return tx.PreKeys().AddBatch(ctx, prekeyRows(principal, deviceID, req.PreKeys, now))
	})
	if err != nil {
		return dto.RotateSignedPreKeyResponse{}, err
	}

	return dto.RotateSignedPreKeyResponse{
		DeviceID:     deviceID,
		SignedPreKey: req.SignedPreKey,
		AddedPreKeys: len(req.PreKeys),
	}, nil
}

// UnregisterDevice deletes the device row and its remaining pool. A missing
// device reports ErrDeviceNotFound; callers that treat absence as success can
// ignore it.
func (s *Service) UnregisterDevice(ctx context.Context, principal string, deviceID int) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.PreKeys().DeleteForDevice(ctx, principal, deviceID); err != nil {
			return err
		}
		if err := tx.Devices().Delete(ctx, principal, deviceID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return ErrDeviceNotFound
			}
			return err
		}
		return nil
	})
}

// UploadPreKeys appends replenishment keys to an existing device's pool.
func (s *Service) UploadPreKeys(ctx context.Context, principal string, deviceID int, req dto.UploadPreKeysRequest) (dto.UploadPreKeysResponse, error) {
	if len(req.PreKeys) == 0 {
		return dto.UploadPreKeysResponse{}, fmt.Errorf("%w: no prekeys supplied", ErrInvalidRequest)
	}
	for _, k := range req.PreKeys {
		if k.PublicKey == "" {
			return dto.UploadPreKeysResponse{}, fmt.Errorf("%w: one-time prekey missing publicKey", ErrInvalidRequest)
		}
	}

	now := s.now().UTC()
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.Devices().Get(ctx, principal, deviceID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return ErrDeviceNotFound
			}
			return err
		}
		if err := tx.PreKeys().AddBatch(ctx, prekeyRows(principal, deviceID, req.PreKeys, now)); err != nil {
			return err
		}
		return tx.Devices().TouchLastSeen(ctx, principal, deviceID, now)
	})
	if err != nil {
		return dto.UploadPreKeysResponse{}, err
	}
	return dto.UploadPreKeysResponse{Count: len(req.PreKeys)}, nil
}

// CountRemainingPreKeys reports the pool size so the owning device can decide
// when to replenish.
func (s *Service) CountRemainingPreKeys(ctx context.Context, principal string, deviceID int) (dto.PreKeyCountResponse, error) {
	if _, err := s.store.Devices().Get(ctx, principal, deviceID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return dto.PreKeyCountResponse{}, ErrDeviceNotFound
		}
		return dto.PreKeyCountResponse{}, err
	}
	count, err := s.store.PreKeys().CountForDevice(ctx, principal, deviceID)
	if err != nil {
		return dto.PreKeyCountResponse{}, err
	}
	s.touchLastSeen(ctx, principal, deviceID)
	return dto.PreKeyCountResponse{Count: int(count)}, nil
}

// touchLastSeen is best-effort hygiene on read paths; a failed update is
// logged and never fails the request.
func (s *Service) touchLastSeen(ctx context.Context, principal string, deviceID int) {
	if err := s.store.Devices().TouchLastSeen(ctx, principal, deviceID, s.now().UTC()); err != nil {
		slog.Debug("last-seen update skipped", "error", err, "principal", principal, "device_id", deviceID)
	}
}

func prekeyRows(principal string, deviceID int, keys []dto.OneTimePreKey, at time.Time) []domain.OneTimePreKey {
	rows := make([]domain.OneTimePreKey, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, domain.OneTimePreKey{
			Principal: principal,
			DeviceID:  deviceID,
			KeyID:     k.KeyID,
			PublicKey: k.PublicKey,
			CreatedAt: at,
		})
	}
	return rows
}

func deviceInfo(d domain.Device) dto.DeviceInfo {
	return dto.DeviceInfo{
		DeviceID:       d.DeviceID,
		DeviceName:     d.DeviceName,
		RegistrationID: d.RegistrationID,
		CreatedAt:      d.CreatedAt,
		LastSeenAt:     d.LastSeenAt,
	}
}
