package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"Forumus/internal/db"
	"Forumus/internal/model"
	"Forumus/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	// DefaultAttachmentCap bounds attachments per message.
	DefaultAttachmentCap = 10

	previewMaxLen     = 120
	attachmentPreview = "[attachment]"
)

// Uploader is the media-upload collaborator. Uploads happen one at a
// time inside the pipeline to bound peak memory and network usage.
type Uploader interface {
	Upload(ctx context.Context, localRef string) (string, error)
}

// SendPipeline runs a message send end to end: validate, upload
// attachments sequentially, persist the message, then best-effort
// update of the thread's summary metadata.
type SendPipeline struct {
	threads       repo.ThreadRepository
	messages      repo.MessageRepository
	uploader      Uploader
	attachmentCap int
	logger        *zap.Logger

	now   func() time.Time
	newID func() primitive.ObjectID
}

func NewSendPipeline(threads repo.ThreadRepository, messages repo.MessageRepository, uploader Uploader, attachmentCap int, logger *zap.Logger) *SendPipeline {
	if attachmentCap <= 0 {
		attachmentCap = DefaultAttachmentCap
	}
	return &SendPipeline{
		threads:       threads,
		messages:      messages,
		uploader:      uploader,
		attachmentCap: attachmentCap,
		logger:        logger,
		now:           time.Now,
		newID:         primitive.NewObjectID,
	}
}

// Send delivers one message. Validation and upload failures abort with
// nothing persisted; a metadata-update failure after the message is
// written is logged and swallowed, the send still succeeds.
func (p *SendPipeline) Send(ctx context.Context, threadID, senderID, text string, localAttachmentRefs []string) (*model.Message, error) {
	if senderID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" && len(localAttachmentRefs) == 0 {
		return nil, ErrEmptyContent
	}
	if len(localAttachmentRefs) > p.attachmentCap {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyAttachments, len(localAttachmentRefs), p.attachmentCap)
	}

	thread, err := p.threads.Get(ctx, threadID)
	if err != nil {
		if errors.Is(err, repo.ErrThreadNotFound) {
			return nil, ErrNotFound
		}
		if db.Unavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}

	urls, err := p.uploadAll(ctx, localAttachmentRefs)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             p.newID(),
		ThreadID:       threadID,
		SenderID:       senderID,
		Content:        text,
		AttachmentURLs: urls,
		Kind:           model.KindText,
		CreatedAt:      p.now().UTC(),
	}

	if err := p.messages.Insert(ctx, msg); err != nil {
		// Already-uploaded media is orphaned here; accepted and logged,
		// not rolled back synchronously.
		p.logger.Error("message write failed, uploaded media may be orphaned",
			zap.String("thread_id", threadID),
			zap.Int("uploaded", len(urls)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrMessageWriteFailed, err)
	}

	p.updateThreadMetadata(ctx, thread, senderID, msg)

	return msg, nil
}

// uploadAll pushes attachments one by one, in order. The first failure
// aborts the whole send: all-or-nothing for the media step.
func (p *SendPipeline) uploadAll(ctx context.Context, refs []string) ([]string, error) {
	urls := make([]string, 0, len(refs))
	for i, ref := range refs {
		url, err := p.uploader.Upload(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment %d/%d: %v", ErrAttachmentUploadFailed, i+1, len(refs), err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// updateThreadMetadata refreshes the thread summary after a successful
// send: preview, activity timestamp, recipient unread counter, and the
// recipient's soft-delete flag flips back so new activity resurfaces a
// hidden thread. Failures here are non-fatal; the message is durable
// and visible through the tail regardless.
func (p *SendPipeline) updateThreadMetadata(ctx context.Context, thread *model.ChatThread, senderID string, msg *model.Message) {
	recipient := thread.Counterpart(senderID)

	if err := p.threads.UpdateAfterSend(ctx, thread.ID, recipient, preview(msg), msg.CreatedAt); err != nil {
		p.logger.Warn("send succeeded but metadata update failed",
			zap.String("thread_id", thread.ID),
			zap.String("message_id", msg.ID.Hex()),
			zap.Error(fmt.Errorf("%w: %v", ErrMetadataUpdateFailed, err)),
		)
		return
	}

	if recipient == senderID {
		// Self-conversation: no counter to bump.
		return
	}
	if err := p.threads.IncrementUnread(ctx, thread.ID, recipient); err != nil {
		p.logger.Warn("send succeeded but unread increment failed",
			zap.String("thread_id", thread.ID),
			zap.String("recipient", recipient),
			zap.Error(fmt.Errorf("%w: %v", ErrMetadataUpdateFailed, err)),
		)
	}
}

func preview(msg *model.Message) string {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return attachmentPreview
	}
	if len(text) > previewMaxLen {
		// Cut on a rune boundary so multi-byte text never leaves an
		// invalid tail in the preview.
		cut := previewMaxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut]
	}
	return text
}
