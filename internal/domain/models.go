package domain

import "time"

// Device is one client installation belonging to a principal. Device ids are
// small integers unique within the principal's device set; they come from the
// principal's sequence row and are never reused, even after deletion.
type Device struct {
	Principal             string    `gorm:"primaryKey;size:190"`
	DeviceID              int       `gorm:"primaryKey;autoIncrement:false"`
	DeviceName            string    `gorm:"size:128;not null"`
	RegistrationID        int       `gorm:"not null"`
	IdentityKeyPublic     string    `gorm:"type:text;not null"`
	SignedPreKeyID        int       `gorm:"not null"`
	SignedPreKeyPublic    string    `gorm:"type:text;not null"`
	SignedPreKeySignature string    `gorm:"type:text;not null"`
	SignedPreKeyUpdatedAt time.Time `gorm:"not null"`
	CreatedAt             time.Time `gorm:"not null;autoCreateTime"`
	LastSeenAt            time.Time `gorm:"not null"`
}

// OneTimePreKey is a single-use public key owned by exactly one device.
// Presence in this table means the key has not been issued; issuance deletes
// the row in the same transaction that returns it.
type OneTimePreKey struct {
	Principal string    `gorm:"primaryKey;size:190"`
	DeviceID  int       `gorm:"primaryKey;autoIncrement:false"`
	KeyID     int       `gorm:"primaryKey;autoIncrement:false"`
	PublicKey string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// CiphertextEnvelope holds one encrypted payload for one target device of one
// logical message. Re-submission for the same key overwrites.
type CiphertextEnvelope struct {
	MessageID       string    `gorm:"primaryKey;size:190"`
	TargetPrincipal string    `gorm:"primaryKey;size:190"`
	TargetDeviceID  int       `gorm:"primaryKey;autoIncrement:false"`
	SenderPrincipal string    `gorm:"size:190;not null"`
	SenderDeviceID  int       `gorm:"not null"`
	Ciphertext      string    `gorm:"type:text;not null"`
	MessageType     int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime;index"`
}

// PrincipalSequence is the per-principal device-id high-water mark. The upsert
// that bumps it serializes concurrent registrations on the same principal and
// guarantees ids are never handed out twice across delete/re-register cycles.
type PrincipalSequence struct {
	Principal    string `gorm:"primaryKey;size:190"`
	LastDeviceID int    `gorm:"not null"`
}

// All returns every persisted entity, in migration order.
func All() []any {
	return []any{&Device{}, &OneTimePreKey{}, &CiphertextEnvelope{}, &PrincipalSequence{}}
}
