package dto

type PruneDevicesRequest struct {
	KeepCount int `json:"keepCount,omitempty"`
}

type PruneDevicesResponse struct {
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
}

type DeviceStatus struct {
	DeviceInfo
	PreKeyCount int `json:"prekeyCount"`
}

type StatusResponse struct {
	Principal        string         `json:"principal"`
	Devices          []DeviceStatus `json:"devices"`
	DeviceCount      int            `json:"deviceCount"`
	OtherPrincipal   string         `json:"otherPrincipal,omitempty"`
	OtherDevices     []DeviceInfo   `json:"otherDevices,omitempty"`
	OtherDeviceCount int            `json:"otherDeviceCount,omitempty"`
	CanSendEncrypted *bool          `json:"canSendEncrypted,omitempty"`
}
