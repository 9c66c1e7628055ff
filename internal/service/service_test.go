package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"keyrelay/internal/domain"
	"keyrelay/internal/dto"
	"keyrelay/internal/service"
	"keyrelay/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*service.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(domain.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	return service.New(store.New(db), 2), db
}

func registerRequest(prekeys int) dto.RegisterDeviceRequest {
	req := dto.RegisterDeviceRequest{
		RegistrationID:    4711,
		IdentityKeyPublic: "identity-pub",
		SignedPreKey: dto.SignedPreKey{
			KeyID:     1,
			PublicKey: "signed-pub",
			Signature: "signed-sig",
		},
	}
	for i := 1; i <= prekeys; i++ {
		req.PreKeys = append(req.PreKeys, dto.OneTimePreKey{
			KeyID:     i,
			PublicKey: fmt.Sprintf("otk-%d", i),
		})
	}
	return req
}

func TestRegisterDevice(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	res, err := svc.RegisterDevice(ctx, "alice", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)", registerRequest(3))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.DeviceID != 1 {
		t.Fatalf("expected first device id 1, got %d", res.DeviceID)
	}
	if res.DeviceName != "iOS App" {
		t.Fatalf("expected iOS App, got %q", res.DeviceName)
	}

	list, err := svc.ListDevices(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(list.Devices))
	}
	if list.Devices[0].RegistrationID != 4711 {
		t.Fatalf("unexpected registration id %d", list.Devices[0].RegistrationID)
	}

	count, err := svc.CountRemainingPreKeys(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.Count != 3 {
		t.Fatalf("expected 3 prekeys, got %d", count.Count)
	}
}

func TestRegisterDeviceRejectsMissingKeyMaterial(t *testing.T) {
	svc, _ := setupService(t)

	req := registerRequest(0)
	req.IdentityKeyPublic = ""
	if _, err := svc.RegisterDevice(context.Background(), "alice", "", req); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDeviceIDsNeverReused(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	last := 0
	for i := 0; i < 3; i++ {
		res, err := svc.RegisterDevice(ctx, "alice", "", registerRequest(1))
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if res.DeviceID <= last {
			t.Fatalf("device id %d not strictly increasing after %d", res.DeviceID, last)
		}
		last = res.DeviceID
	}

	// Remove everything, then re-register: the id must keep climbing.
	for _, d := range mustList(t, svc, "alice") {
		if err := svc.UnregisterDevice(ctx, "alice", d.DeviceID); err != nil {
			t.Fatalf("unregister %d: %v", d.DeviceID, err)
		}
	}
	res, err := svc.RegisterDevice(ctx, "alice", "", registerRequest(1))
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if res.DeviceID <= last {
		t.Fatalf("device id %d reused after delete/re-register (last was %d)", res.DeviceID, last)
	}
}

func TestUnregisterDevice(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	if _, err := svc.RegisterDevice(ctx, "alice", "", registerRequest(5)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.UnregisterDevice(ctx, "alice", 1); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := svc.UnregisterDevice(ctx, "alice", 1); !errors.Is(err, service.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound on second delete, got %v", err)
	}

	var prekeys int64
	if err := db.Model(&domain.OneTimePreKey{}).
		Where("principal = ? AND device_id = ?", "alice", 1).
		Count(&prekeys).Error; err != nil {
		t.Fatalf("count prekeys: %v", err)
	}
	if prekeys != 0 {
		t.Fatalf("expected prekey pool deleted with device, found %d rows", prekeys)
	}
}

func TestRotateSignedPreKey(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.RegisterDevice(ctx, "alice", "", registerRequest(0)); err != nil {
		t.Fatalf("register: %v", err)
	}

	rotated, err := svc.RotateSignedPreKey(ctx, "alice", 1, dto.RotateSignedPreKeyRequest{
		SignedPreKey: dto.SignedPreKey{KeyID: 2, PublicKey: "signed-rotated", Signature: "sig-rotated"},
		PreKeys:      []dto.OneTimePreKey{{KeyID: 100, PublicKey: "otk-rotated"}},
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.AddedPreKeys != 1 {
		t.Fatalf("expected 1 added prekey, got %d", rotated.AddedPreKeys)
	}

	bundle, err := svc.GetBundle(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("bundle after rotate: %v", err)
	}
	if bundle.SignedPreKey.PublicKey != "signed-rotated" || bundle.SignedPreKey.KeyID != 2 {
		t.Fatalf("stale signed prekey served after rotation: %+v", bundle.SignedPreKey)
	}

	_, err = svc.RotateSignedPreKey(ctx, "alice", 99, dto.RotateSignedPreKeyRequest{
		SignedPreKey: dto.SignedPreKey{KeyID: 3, PublicKey: "pk", Signature: "sig"},
	})
	if !errors.Is(err, service.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound for unknown device, got %v", err)
	}
}

func TestUploadPreKeys(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.RegisterDevice(ctx, "alice", "", registerRequest(2)); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := svc.UploadPreKeys(ctx, "alice", 1, dto.UploadPreKeysRequest{
		PreKeys: []dto.OneTimePreKey{
			{KeyID: 10, PublicKey: "otk-10"},
			{KeyID: 11, PublicKey: "otk-11"},
		},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("expected 2 uploaded, got %d", res.Count)
	}

	count, err := svc.CountRemainingPreKeys(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.Count != 4 {
		t.Fatalf("expected 4 prekeys, got %d", count.Count)
	}

	if _, err := svc.UploadPreKeys(ctx, "alice", 42, dto.UploadPreKeysRequest{
		PreKeys: []dto.OneTimePreKey{{KeyID: 1, PublicKey: "pk"}},
	}); !errors.Is(err, service.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func mustList(t *testing.T, svc *service.Service, principal string) []dto.DeviceInfo {
	t.Helper()
	list, err := svc.ListDevices(context.Background(), principal)
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	return list.Devices
}
