package service

import (
	"context"
	"errors"

	"keyrelay/internal/domain"
	"keyrelay/internal/dto"
	"keyrelay/internal/store"
)

// GetBundle assembles session-establishment material for one device: identity
// key, registration id, signed prekey, and one consumed one-time prekey when
// the pool has any left. An empty pool is not an error; the bundle simply
// omits the preKey field and the client falls back to a session without it.
func (s *Service) GetBundle(ctx context.Context, principal string, deviceID int) (dto.PreKeyBundle, error) {
	var (
		device *domain.Device
		otk    *domain.OneTimePreKey
	)
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		device, err = tx.Devices().Get(ctx, principal, deviceID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return ErrDeviceNotFound
			}
			return err
		}
		otk, err = tx.PreKeys().TakeOne(ctx, principal, deviceID)
		return err
	})
	if err != nil {
		return dto.PreKeyBundle{}, err
	}
	return bundleFrom(device, otk), nil
}

// GetAllBundles returns one bundle per device of the principal so a sender
// can fan a message out to every installation. A device with an exhausted
// pool contributes a bundle without a one-time prekey rather than failing
// the whole call.
func (s *Service) GetAllBundles(ctx context.Context, principal string) (dto.AllBundlesResponse, error) {
	var resp dto.AllBundlesResponse
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		devices, err := tx.Devices().ListByPrincipal(ctx, principal)
		if err != nil {
			return err
		}
		resp.Bundles = make([]dto.PreKeyBundle, 0, len(devices))
		for i := range devices {
			otk, err := tx.PreKeys().TakeOne(ctx, principal, devices[i].DeviceID)
			if err != nil {
				return err
			}
			resp.Bundles = append(resp.Bundles, bundleFrom(&devices[i], otk))
		}
		return nil
	})
	if err != nil {
		return dto.AllBundlesResponse{}, err
	}
	return resp, nil
}

func bundleFrom(device *domain.Device, otk *domain.OneTimePreKey) dto.PreKeyBundle {
	bundle := dto.PreKeyBundle{
		IdentityKey:    device.IdentityKeyPublic,
		RegistrationID: device.RegistrationID,
		DeviceID:       device.DeviceID,
		SignedPreKey: dto.SignedPreKey{
			KeyID:     device.SignedPreKeyID,
			PublicKey: device.SignedPreKeyPublic,
			Signature: device.SignedPreKeySignature,
		},
	}
	if otk != nil {
		bundle.PreKey = &dto.OneTimePreKey{KeyID: otk.KeyID, PublicKey: otk.PublicKey}
	}
	return bundle
}
