package dto

type PreKeyBundle struct {
	IdentityKey    string         `json:"identityKey"`
	RegistrationID int            `json:"registrationId"`
	DeviceID       int            `json:"deviceId"`
	SignedPreKey   SignedPreKey   `json:"signedPreKey"`
	PreKey         *OneTimePreKey `json:"preKey,omitempty"`
}

type AllBundlesResponse struct {
	Bundles []PreKeyBundle `json:"bundles"`
}
