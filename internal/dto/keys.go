package dto

import "time"

type SignedPreKey struct {
	KeyID     int    `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

type OneTimePreKey struct {
	KeyID     int    `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

type RegisterDeviceRequest struct {
	RegistrationID    int             `json:"registrationId"`
	IdentityKeyPublic string          `json:"identityKeyPublic"`
	SignedPreKey      SignedPreKey    `json:"signedPreKey"`
	PreKeys           []OneTimePreKey `json:"preKeys"`
}

type RegisterDeviceResponse struct {
	DeviceID   int    `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

type RotateSignedPreKeyRequest struct {
	SignedPreKey SignedPreKey    `json:"signedPreKey"`
	PreKeys      []OneTimePreKey `json:"preKeys,omitempty"`
}

type RotateSignedPreKeyResponse struct {
	DeviceID     int          `json:"deviceId"`
	SignedPreKey SignedPreKey `json:"signedPreKey"`
	AddedPreKeys int          `json:"addedPreKeys"`
}

type UploadPreKeysRequest struct {
	PreKeys []OneTimePreKey `json:"preKeys"`
}

type UploadPreKeysResponse struct {
	Count int `json:"count"`
}

type PreKeyCountResponse struct {
	Count int `json:"count"`
}

type DeviceInfo struct {
	DeviceID       int       `json:"deviceId"`
	DeviceName     string    `json:"deviceName"`
	RegistrationID int       `json:"registrationId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
}

type ListDevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}
