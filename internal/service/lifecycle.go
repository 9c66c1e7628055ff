package service

import (
	"context"

	"keyrelay/internal/dto"
	"keyrelay/internal/store"
)

// PruneDevices retires the oldest devices of the principal until at most
// keepCount remain, deleting their prekey pools with them. keepCount below 1
// falls back to the configured default. Registration calls the same path
// inside its own transaction before inserting the new device.
func (s *Service) PruneDevices(ctx context.Context, principal string, keepCount int) (dto.PruneDevicesResponse, error) {
	if keepCount < 1 {
		keepCount = s.keepCount
	}
	var resp dto.PruneDevicesResponse
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		removed, err := s.pruneLocked(ctx, tx, principal, keepCount)
		if err != nil {
			return err
		}
		resp.Removed = removed
		kept, err := tx.Devices().ListByPrincipal(ctx, principal)
		if err != nil {
			return err
		}
		resp.Kept = len(kept)
		return nil
	})
	if err != nil {
		return dto.PruneDevicesResponse{}, err
	}
	return resp, nil
}

// pruneLocked deletes every device beyond the first keepCount, newest-first
// by creation time. Must run inside the caller's transaction so a concurrent
// registration cannot be pruned by a decision made before it existed.
func (s *Service) pruneLocked(ctx context.Context, tx *store.Store, principal string, keepCount int) (int, error) {
	devices, err := tx.Devices().ListNewestFirst(ctx, principal)
	if err != nil {
		return 0, err
	}
	if len(devices) <= keepCount {
		return 0, nil
	}
	removed := 0
	for _, d := range devices[keepCount:] {
		if err := tx.PreKeys().DeleteForDevice(ctx, principal, d.DeviceID); err != nil {
			return removed, err
		}
		if err := tx.Devices().Delete(ctx, principal, d.DeviceID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
