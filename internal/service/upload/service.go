// Package upload receives multipart files for direct conversations,
// validates size by detected MIME category, persists them under the local
// uploads directory, and records an immutable Upload row.
package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dehive/internal/domain"
	"dehive/internal/store"
	apperr "dehive/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Limits struct {
	ImageMB int64
	VideoMB int64
	AudioMB int64
	FileMB  int64
}

type Config struct {
	StorageDriver string
	Dir           string
	PublicBaseURL string
	Limits        Limits
}

type Service struct {
	store *store.Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

func New(st *store.Store, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, cfg: cfg, log: log, now: time.Now}
}

type StoreInput struct {
	ConversationID string
	Filename       string
	Size           int64
	File           io.ReadSeeker
}

// Store validates and persists one uploaded file. Only the local disk
// driver is implemented; any other configured driver is rejected outright.
func (s *Service) Store(ctx context.Context, selfID string, in StoreInput) (*domain.Upload, error) {
	if s.cfg.StorageDriver != "local" {
		return nil, apperr.InvalidArg("storage driver " + s.cfg.StorageDriver + " is not supported")
	}
	convID, err := uuid.Parse(strings.TrimSpace(in.ConversationID))
	if err != nil {
		return nil, apperr.InvalidArg("invalid conversation id")
	}
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
	if in.Size <= 0 {
		return nil, apperr.InvalidArg("empty upload")
	}

	mimeType, err := sniffMime(in.File)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "mime detection failed", err)
	}
	category := categoryOf(mimeType)
	limit := s.limitFor(category)
	if in.Size > limit {
		return nil, apperr.InvalidArg(category + " exceeds the size limit")
	}

	name := sanitizeFilename(in.Filename)
	id := uuid.New()
	stored := id.String() + extensionOf(name, mimeType)
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "upload dir create failed", err)
	}
	path := filepath.Join(s.cfg.Dir, stored)
	if err := writeFile(path, in.File); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "upload write failed", err)
	}

	up := &domain.Upload{
		ID:             id,
		OwnerID:        selfID,
		ConversationID: convID,
		Type:           category,
		URL:            strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/uploads/" + stored,
		Name:           name,
		Size:           in.Size,
		MimeType:       mimeType,
		CreatedAt:      s.now().UTC(),
	}

	switch category {
	case domain.UploadTypeImage:
		up.Width, up.Height = imageDimensions(path)
	case domain.UploadTypeVideo, domain.UploadTypeAudio:
		up.DurationMs = probeDurationMs(ctx, path)
	}

	if err := s.store.Uploads().Create(ctx, up); err != nil {
		// Failed insert must not leave an orphaned file behind.
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Warn("orphaned upload file", "path", path, "error", rmErr)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "upload record failed", err)
	}
	return up, nil
}

// List returns the caller's uploads for one conversation.
func (s *Service) List(ctx context.Context, selfID, conversationID string, page, limit int) ([]domain.Upload, error) {
	convID, err := uuid.Parse(strings.TrimSpace(conversationID))
	if err != nil {
		return nil, apperr.InvalidArg("invalid conversation id")
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	uploads, err := s.store.Uploads().ListForOwner(ctx, selfID, convID, (page-1)*limit, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "upload listing failed", err)
	}
	return uploads, nil
}

func (s *Service) limitFor(category string) int64 {
	const mb = int64(1) << 20
	switch category {
	case domain.UploadTypeImage:
		return s.cfg.Limits.ImageMB * mb
	case domain.UploadTypeVideo:
		return s.cfg.Limits.VideoMB * mb
	case domain.UploadTypeAudio:
		return s.cfg.Limits.AudioMB * mb
	default:
		return s.cfg.Limits.FileMB * mb
	}
}

// sniffMime detects the content type from the first 512 bytes and rewinds.
func sniffMime(f io.ReadSeeker) (string, error) {
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	mimeType := http.DetectContentType(buf[:n])
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType, nil
}

func categoryOf(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.UploadTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return domain.UploadTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return domain.UploadTypeAudio
	default:
		return domain.UploadTypeFile
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "upload"
	}
	return name
}

func extensionOf(name, mimeType string) string {
	if ext := filepath.Ext(name); ext != "" && len(ext) <= 8 {
		return strings.ToLower(ext)
	}
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}

func writeFile(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return err
	}
	return dst.Close()
}
