package service

import (
	"context"

	"keyrelay/internal/dto"
)

// StatusReport summarizes the principal's own devices with their remaining
// prekey counts. When otherPrincipal is set it also reports that principal's
// devices and whether an encrypted send to them is possible at all.
func (s *Service) StatusReport(ctx context.Context, principal, otherPrincipal string) (dto.StatusResponse, error) {
	devices, err := s.store.Devices().ListByPrincipal(ctx, principal)
	if err != nil {
		return dto.StatusResponse{}, err
	}

	resp := dto.StatusResponse{
		Principal:   principal,
		Devices:     make([]dto.DeviceStatus, 0, len(devices)),
		DeviceCount: len(devices),
	}
	for _, d := range devices {
		count, err := s.store.PreKeys().CountForDevice(ctx, principal, d.DeviceID)
		if err != nil {
			return dto.StatusResponse{}, err
		}
		resp.Devices = append(resp.Devices, dto.DeviceStatus{
			DeviceInfo:  deviceInfo(d),
			PreKeyCount: int(count),
		})
	}

	if otherPrincipal != "" {
		others, err := s.store.Devices().ListByPrincipal(ctx, otherPrincipal)
		if err != nil {
			return dto.StatusResponse{}, err
		}
		resp.OtherPrincipal = otherPrincipal
		resp.OtherDevices = make([]dto.DeviceInfo, 0, len(others))
		for _, d := range others {
			resp.OtherDevices = append(resp.OtherDevices, deviceInfo(d))
		}
		resp.OtherDeviceCount = len(others)
		canSend := len(others) > 0
		resp.CanSendEncrypted = &canSend
	}

	return resp, nil
}
