// Package dm owns direct conversations and their messages: create-or-get,
// paginated listing, send, edit, and soft delete, each gated on the acting
// user being a participant.
package dm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"dehive/internal/domain"
	"dehive/internal/dto"
	"dehive/internal/store"
	apperr "dehive/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxUserIDLen     = 64
)

type Service struct {
	store    *store.Store
	profiles *ProfileResolver
	log      *slog.Logger
	now      func() time.Time
}

func New(st *store.Store, profiles *ProfileResolver, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, profiles: profiles, log: log, now: time.Now}
}

type SendInput struct {
	ConversationID string
	Content        string
	UploadIDs      []string
	ReplyTo        string
}

func validUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLen {
		return false
	}
	return !strings.ContainsAny(id, " \t\r\n")
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.InvalidArg("invalid " + what)
	}
	return id, nil
}

func clampPage(page, limit int) (offset, capped int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return (page - 1) * limit, limit
}

// CreateOrGet returns the conversation between self and other, creating it
// on first contact. Concurrent first messages race on the unique pair index;
// the loser refetches the winner's row.
func (s *Service) CreateOrGet(ctx context.Context, selfID, otherID string, encrypted bool) (*domain.Conversation, error) {
	if !validUserID(selfID) || !validUserID(otherID) {
		return nil, apperr.InvalidArg("invalid user id")
	}
	if selfID == otherID {
		return nil, apperr.InvalidArg("cannot open a conversation with yourself")
	}

	userA, userB := domain.CanonicalPair(selfID, otherID)

	conv, err := s.store.Conversations().GetByPair(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.CodeInternal, "conversation lookup failed", err)
	}

	now := s.now().UTC()
	fresh := &domain.Conversation{
		UserA:       userA,
		UserB:       userB,
		IsEncrypted: encrypted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Conversations().Create(ctx, fresh); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.store.Conversations().GetByPair(ctx, userA, userB)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "conversation create failed", err)
	}
	return fresh, nil
}

// ListConversations pages the caller's conversations, most recent activity
// first, with the other participant's profile joined in.
func (s *Service) ListConversations(ctx context.Context, selfID string, page, limit int) ([]dto.ConversationView, error) {
	if !validUserID(selfID) {
		return nil, apperr.InvalidArg("invalid user id")
	}
	offset, limit := clampPage(page, limit)
	convs, err := s.store.Conversations().ListForUser(ctx, selfID, offset, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "conversation listing failed", err)
	}
	out := make([]dto.ConversationView, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		out = append(out, dto.ConversationView{
			ID:          c.ID.String(),
			Other:       s.profiles.Resolve(ctx, c.OtherParticipant(selfID)),
			IsEncrypted: c.IsEncrypted,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return out, nil
}

// conversationForParticipant loads a conversation and enforces membership.
func (s *Service) conversationForParticipant(ctx context.Context, selfID string, convID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.store.Conversations().GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "conversation lookup failed", err)
	}
	if !conv.HasParticipant(selfID) {
		return nil, apperr.Forbidden("not a participant of this conversation")
	}
	return conv, nil
}

// Send validates and persists a new message, returning the canonical view to
// broadcast plus the conversation for room resolution.
func (s *Service) Send(ctx context.Context, selfID string, in SendInput) (*dto.MessageView, *domain.Conversation, error) {
	if !validUserID(selfID) {
		return nil, nil, apperr.InvalidArg("invalid user id")
	}
	convID, err := parseID(in.ConversationID, "conversation id")
	if err != nil {
		return nil, nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.UploadIDs) == 0 {
		return nil, nil, apperr.InvalidArg("message must have content or attachments")
	}
	// The limit counts characters, not bytes; multibyte text gets the same
	// budget as ASCII.
	if utf8.RuneCountInString(content) > domain.MaxMessageContentLen {
		return nil, nil, apperr.InvalidArg("message content too long")
	}

	conv, err := s.conversationForParticipant(ctx, selfID, convID)
	if err != nil {
		return nil, nil, err
	}

	attachments, err := s.resolveAttachments(ctx, selfID, in.UploadIDs)
	if err != nil {
		return nil, nil, err
	}

	var replyToID *uuid.UUID
	if strings.TrimSpace(in.ReplyTo) != "" {
		rid, err := parseID(in.ReplyTo, "replyTo id")
		if err != nil {
			return nil, nil, err
		}
		replied, err := s.store.Messages().GetByID(ctx, rid)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperr.NotFound("replied message not found")
			}
			return nil, nil, apperr.Wrap(apperr.CodeInternal, "reply lookup failed", err)
		}
		if replied.ConversationID != conv.ID {
			return nil, nil, apperr.InvalidArg("replied message belongs to a different conversation")
		}
		replyToID = &rid
	}

	now := s.now().UTC()
	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       selfID,
		Content:        content,
		Attachments:    attachments,
		ReplyToID:      replyToID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInternal, "message create failed", err)
	}
	if err := s.store.Conversations().Touch(ctx, conv.ID, now); err != nil {
		s.log.Warn("conversation touch failed", "conversation_id", conv.ID, "error", err)
	}

	view := s.toView(ctx, msg, true)
	return view, conv, nil
}

// resolveAttachments re-fetches each upload and requires the sender to own
// all of them.
func (s *Service) resolveAttachments(ctx context.Context, selfID string, rawIDs []string) ([]domain.Attachment, error) {
	if len(rawIDs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := parseID(raw, "upload id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	uploads, err := s.store.Uploads().GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "upload lookup failed", err)
	}
	if len(uploads) != len(ids) {
		return nil, apperr.NotFound("one or more uploads not found")
	}
	attachments := make([]domain.Attachment, 0, len(uploads))
	for i := range uploads {
		if uploads[i].OwnerID != selfID {
			return nil, apperr.Forbidden("you can only attach your own uploads")
		}
		attachments = append(attachments, uploads[i].Snapshot())
	}
	return attachments, nil
}

// List pages a conversation's messages newest-first with a stable id
// tie-break, each enriched with the sender's display profile.
func (s *Service) List(ctx context.Context, selfID, conversationID string, page, limit int) ([]dto.MessageView, error) {
	if !validUserID(selfID) {
		return nil, apperr.InvalidArg("invalid user id")
	}
	convID, err := parseID(conversationID, "conversation id")
	if err != nil {
		return nil, err
	}
	if _, err := s.conversationForParticipant(ctx, selfID, convID); err != nil {
		return nil, err
	}
	offset, limit := clampPage(page, limit)
	msgs, err := s.store.Messages().ListByConversation(ctx, convID, offset, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "message listing failed", err)
	}
	out := make([]dto.MessageView, 0, len(msgs))
	for i := range msgs {
		out = append(out, *s.toView(ctx, &msgs[i], true))
	}
	return out, nil
}

// Edit replaces a message's content. Sender-only; deleted messages cannot
// be edited.
func (s *Service) Edit(ctx context.Context, selfID, messageID, content string) (*dto.MessageView, *domain.Conversation, error) {
	if !validUserID(selfID) {
		return nil, nil, apperr.InvalidArg("invalid user id")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, apperr.InvalidArg("message content is required")
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageContentLen {
		return nil, nil, apperr.InvalidArg("message content too long")
	}

	msg, conv, err := s.ownMessage(ctx, selfID, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.IsDeleted {
		return nil, nil, apperr.InvalidArg("cannot edit a deleted message")
	}

	now := s.now().UTC()
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	msg.UpdatedAt = now
	if err := s.store.Messages().Save(ctx, msg); err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInternal, "message edit failed", err)
	}
	return s.toView(ctx, msg, true), conv, nil
}

// Delete soft-deletes a message: content replaced with the deletion marker,
// attachments cleared, row kept. Idempotent — deleting twice returns the
// already-deleted document.
func (s *Service) Delete(ctx context.Context, selfID, messageID string) (*dto.MessageView, *domain.Conversation, error) {
	if !validUserID(selfID) {
		return nil, nil, apperr.InvalidArg("invalid user id")
	}
	msg, conv, err := s.ownMessage(ctx, selfID, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.IsDeleted {
		return s.toView(ctx, msg, false), conv, nil
	}

	now := s.now().UTC()
	msg.IsDeleted = true
	msg.Content = domain.DeletedMessageContent
	msg.Attachments = nil
	msg.UpdatedAt = now
	if err := s.store.Messages().Save(ctx, msg); err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInternal, "message delete failed", err)
	}
	return s.toView(ctx, msg, false), conv, nil
}

// ownMessage loads a message and enforces that self is its sender.
func (s *Service) ownMessage(ctx context.Context, selfID, messageID string) (*domain.Message, *domain.Conversation, error) {
	msgID, err := parseID(messageID, "message id")
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.store.Messages().GetByID(ctx, msgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("message not found")
		}
		return nil, nil, apperr.Wrap(apperr.CodeInternal, "message lookup failed", err)
	}
	if msg.SenderID != selfID {
		return nil, nil, apperr.Forbidden("only the sender can modify a message")
	}
	conv, err := s.store.Conversations().GetByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInternal, "conversation lookup failed", err)
	}
	return msg, conv, nil
}

// toView enriches a stored message for delivery. withReply resolves one
// level of replyTo; deeper chains are intentionally not expanded.
func (s *Service) toView(ctx context.Context, m *domain.Message, withReply bool) *dto.MessageView {
	view := &dto.MessageView{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Sender:         s.profiles.Resolve(ctx, m.SenderID),
		Content:        m.Content,
		Attachments:    m.Attachments,
		IsEdited:       m.IsEdited,
		EditedAt:       m.EditedAt,
		IsDeleted:      m.IsDeleted,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if view.Attachments == nil {
		view.Attachments = []domain.Attachment{}
	}
	if withReply && m.ReplyToID != nil {
		if replied, err := s.store.Messages().GetByID(ctx, *m.ReplyToID); err == nil {
			view.ReplyTo = s.toView(ctx, replied, false)
		} else {
			s.log.Debug("replyTo resolve failed", "message_id", m.ID, "reply_to", *m.ReplyToID, "error", err)
		}
	}
	return view
}
