package dto

import "time"

type CiphertextEntry struct {
	TargetPrincipal string `json:"targetPrincipal"`
	TargetDeviceID  int    `json:"targetDeviceId"`
	Ciphertext      string `json:"ciphertext"`
	MessageType     int    `json:"messageType"`
}

type StoreCiphertextsRequest struct {
	MessageID      string            `json:"messageId"`
	SenderDeviceID int               `json:"senderDeviceId"`
	Ciphertexts    []CiphertextEntry `json:"ciphertexts"`
}

type StoreCiphertextsResponse struct {
	MessageID string `json:"messageId"`
	Stored    int    `json:"stored"`
}

type FetchCiphertextResponse struct {
	Ciphertext      string `json:"ciphertext"`
	MessageType     int    `json:"messageType"`
	SenderPrincipal string `json:"senderPrincipal"`
	SenderDeviceID  int    `json:"senderDeviceId"`
}

type MessageTarget struct {
	TargetPrincipal string    `json:"targetPrincipal"`
	TargetDeviceID  int       `json:"targetDeviceId"`
	SenderPrincipal string    `json:"senderPrincipal"`
	SenderDeviceID  int       `json:"senderDeviceId"`
	MessageType     int       `json:"messageType"`
	CreatedAt       time.Time `json:"createdAt"`
}

type MessageStatusResponse struct {
	MessageID           string          `json:"messageId"`
	CiphertextCount     int             `json:"ciphertextCount"`
	Ciphertexts         []MessageTarget `json:"ciphertexts"`
	HasCiphertextForYou bool            `json:"hasCiphertextForCurrentDevice"`
}
