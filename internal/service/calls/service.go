// Package calls does the bookkeeping for multi-party channel voice calls:
// a call row with a live participant count, derived from participant rows
// inside the same transaction that mutates them.
package calls

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dehive/internal/domain"
	"dehive/internal/store"
	apperr "dehive/pkg/errors"

	"gorm.io/gorm"
)

type Service struct {
	store *store.Store
	log   *slog.Logger
	now   func() time.Time
}

func New(st *store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, log: log, now: time.Now}
}

type JoinResult struct {
	Call        *domain.ChannelCall
	Participant *domain.ChannelParticipant
	// Rejoined is true when the user already had a participant row; the
	// counter is unchanged in that case.
	Rejoined bool
}

func validID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && len(id) <= 64 && !strings.ContainsAny(id, " \t\r\n")
}

// Join adds the user to the channel's live call, creating the call if no
// connected one exists. Idempotent per (channel, user).
func (s *Service) Join(ctx context.Context, channelID, userID string) (*JoinResult, error) {
	if !validID(channelID) {
		return nil, apperr.InvalidArg("invalid channel id")
	}
	if !validID(userID) {
		return nil, apperr.InvalidArg("invalid user id")
	}

	var res JoinResult
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		now := s.now().UTC()

		call, err := tx.Calls().GetConnected(ctx, channelID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			call = &domain.ChannelCall{
				ChannelID: channelID,
				Status:    domain.CallStatusConnected,
				StartedAt: now,
			}
			if err := tx.Calls().Create(ctx, call); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		participant, err := tx.Participants().GetByCallAndUser(ctx, call.ID, userID)
		if err == nil {
			res = JoinResult{Call: call, Participant: participant, Rejoined: true}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		participant = &domain.ChannelParticipant{
			CallID:         call.ID,
			ChannelID:      channelID,
			UserID:         userID,
			JoinedAt:       now,
			IsAudioEnabled: true,
			IsVideoMuted:   true,
		}
		if err := tx.Participants().Create(ctx, participant); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Concurrent duplicate join: treat as the idempotent case.
				existing, getErr := tx.Participants().GetByCallAndUser(ctx, call.ID, userID)
				if getErr != nil {
					return getErr
				}
				res = JoinResult{Call: call, Participant: existing, Rejoined: true}
				return nil
			}
			return err
		}

		n, err := tx.Participants().CountByCall(ctx, call.ID)
		if err != nil {
			return err
		}
		if err := tx.Calls().SetParticipantCount(ctx, call.ID, n); err != nil {
			return err
		}
		call.CurrentParticipants = n
		res = JoinResult{Call: call, Participant: participant}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "channel join failed", err)
	}
	return &res, nil
}

type LeaveResult struct {
	Call  *domain.ChannelCall
	Ended bool
}

// Leave removes the user from the channel's live call. The counter is
// recomputed in the same transaction; the call ends when it reaches zero.
func (s *Service) Leave(ctx context.Context, channelID, userID string) (*LeaveResult, error) {
	if !validID(channelID) {
		return nil, apperr.InvalidArg("invalid channel id")
	}
	if !validID(userID) {
		return nil, apperr.InvalidArg("invalid user id")
	}

	var res LeaveResult
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		call, err := tx.Calls().GetConnected(ctx, channelID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("no active call in this channel")
		}
		if err != nil {
			return err
		}

		removed, err := tx.Participants().Delete(ctx, call.ID, userID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return apperr.NotFound("not a participant of this call")
		}

		n, err := tx.Participants().CountByCall(ctx, call.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			now := s.now().UTC()
			if err := tx.Calls().End(ctx, call.ID, domain.CallEndReasonAllLeft, now); err != nil {
				return err
			}
			reason := domain.CallEndReasonAllLeft
			call.Status = domain.CallStatusEnded
			call.EndReason = &reason
			call.EndedAt = &now
			call.CurrentParticipants = 0
			res = LeaveResult{Call: call, Ended: true}
			return nil
		}
		if err := tx.Calls().SetParticipantCount(ctx, call.ID, n); err != nil {
			return err
		}
		call.CurrentParticipants = n
		res = LeaveResult{Call: call}
		return nil
	})
	if err != nil {
		var app *apperr.AppError
		if errors.As(err, &app) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "channel leave failed", err)
	}
	return &res, nil
}

// Participants lists the live call's members.
func (s *Service) Participants(ctx context.Context, channelID string) (*domain.ChannelCall, []domain.ChannelParticipant, error) {
	if !validID(channelID) {
		return nil, nil, apperr.InvalidArg("invalid channel id")
	}
	call, err := s.store.Calls().GetConnected(ctx, channelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFound("no active call in this channel")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInternal, "call lookup failed", err)
	}
	participants, err := s.store.Participants().ListByCall(ctx, call.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInternal, "participant listing failed", err)
	}
	return call, participants, nil
}

// Reconcile recomputes counters for every connected call and ends the empty
// ones. Covers counters orphaned by crashes between socket disconnect and
// the leave write.
func (s *Service) Reconcile(ctx context.Context) error {
	calls, err := s.store.Calls().ListConnected(ctx)
	if err != nil {
		return err
	}
	var live int64
	for i := range calls {
		call := &calls[i]
		err := s.store.WithTx(ctx, func(tx *store.Store) error {
			n, err := tx.Participants().CountByCall(ctx, call.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return tx.Calls().End(ctx, call.ID, domain.CallEndReasonAllLeft, s.now().UTC())
			}
			live += n
			if n != call.CurrentParticipants {
				s.log.Warn("participant counter drift repaired",
					"call_id", call.ID, "stored", call.CurrentParticipants, "actual", n)
				return tx.Calls().SetParticipantCount(ctx, call.ID, n)
			}
			return nil
		})
		if err != nil {
			s.log.Error("call reconcile failed", "call_id", call.ID, "error", err)
		}
	}
	s.observeLive(live)
	return nil
}
