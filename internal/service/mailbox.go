package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keyrelay/internal/domain"
	"keyrelay/internal/dto"
	"keyrelay/internal/store"

	"github.com/google/uuid"
)

// StoreCiphertexts upserts one envelope per target device for a logical
// message. The message id is caller-supplied (generated when omitted);
// re-submission for the same (message, target) overwrites the envelope.
func (s *Service) StoreCiphertexts(ctx context.Context, senderPrincipal string, req dto.StoreCiphertextsRequest) (dto.StoreCiphertextsResponse, error) {
	if len(req.Ciphertexts) == 0 {
		return dto.StoreCiphertextsResponse{}, fmt.Errorf("%w: no ciphertexts supplied", ErrInvalidRequest)
	}
	messageID := req.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}

	now := s.now().UTC()
	envelopes := make([]domain.CiphertextEnvelope, 0, len(req.Ciphertexts))
	seen := make(map[string]int, len(req.Ciphertexts))
	for _, ct := range req.Ciphertexts {
		if ct.TargetPrincipal == "" || ct.Ciphertext == "" {
			return dto.StoreCiphertextsResponse{}, fmt.Errorf("%w: ciphertext entry missing target or payload", ErrInvalidRequest)
		}
		if ct.TargetDeviceID < 1 {
			return dto.StoreCiphertextsResponse{}, fmt.Errorf("%w: invalid target device id %d", ErrInvalidRequest, ct.TargetDeviceID)
		}
		env := domain.CiphertextEnvelope{
			MessageID:       messageID,
			TargetPrincipal: ct.TargetPrincipal,
			TargetDeviceID:  ct.TargetDeviceID,
			SenderPrincipal: senderPrincipal,
			SenderDeviceID:  req.SenderDeviceID,
			Ciphertext:      ct.Ciphertext,
			MessageType:     ct.MessageType,
			CreatedAt:       now,
		}
		// Two entries for the same target in one batch would break the
		// multi-row upsert; the later entry wins, matching re-submission.
		key := fmt.Sprintf("%s/%d", ct.TargetPrincipal, ct.TargetDeviceID)
		if i, ok := seen[key]; ok {
			envelopes[i] = env
			continue
		}
		seen[key] = len(envelopes)
		envelopes = append(envelopes, env)
	}

	if err := s.store.Envelopes().UpsertBatch(ctx, envelopes); err != nil {
		return dto.StoreCiphertextsResponse{}, err
	}
	return dto.StoreCiphertextsResponse{MessageID: messageID, Stored: len(envelopes)}, nil
}

// FetchCiphertext returns the envelope addressed to exactly this device for
// the message. Fetch never deletes: a client that crashes before persisting
// the plaintext can fetch again.
func (s *Service) FetchCiphertext(ctx context.Context, messageID, principal string, deviceID int) (dto.FetchCiphertextResponse, error) {
	env, err := s.store.Envelopes().Get(ctx, messageID, principal, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return dto.FetchCiphertextResponse{}, ErrCiphertextNotFound
		}
		return dto.FetchCiphertextResponse{}, err
	}
	s.touchLastSeen(ctx, principal, deviceID)
	return dto.FetchCiphertextResponse{
		Ciphertext:      env.Ciphertext,
		MessageType:     env.MessageType,
		SenderPrincipal: env.SenderPrincipal,
		SenderDeviceID:  env.SenderDeviceID,
	}, nil
}

// MessageStatus reports which target devices hold an envelope for a message
// and whether the requesting device is among them.
func (s *Service) MessageStatus(ctx context.Context, messageID, principal string, deviceID int) (dto.MessageStatusResponse, error) {
	envs, err := s.store.Envelopes().ListByMessage(ctx, messageID)
	if err != nil {
		return dto.MessageStatusResponse{}, err
	}
	resp := dto.MessageStatusResponse{
		MessageID:       messageID,
		CiphertextCount: len(envs),
		Ciphertexts:     make([]dto.MessageTarget, 0, len(envs)),
	}
	for _, e := range envs {
		if e.TargetPrincipal == principal && e.TargetDeviceID == deviceID {
			resp.HasCiphertextForYou = true
		}
		resp.Ciphertexts = append(resp.Ciphertexts, dto.MessageTarget{
			TargetPrincipal: e.TargetPrincipal,
			TargetDeviceID:  e.TargetDeviceID,
			SenderPrincipal: e.SenderPrincipal,
			SenderDeviceID:  e.SenderDeviceID,
			MessageType:     e.MessageType,
			CreatedAt:       e.CreatedAt,
		})
	}
	return resp, nil
}

// SweepExpiredEnvelopes deletes envelopes older than the retention window.
// Device deletion leaves envelopes in place, so this sweep is what keeps the
// mailbox bounded.
func (s *Service) SweepExpiredEnvelopes(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.store.Envelopes().DeleteOlderThan(ctx, s.now().UTC().Add(-retention))
}
