package service

import "errors"

// Sentinels for the sync core. Validation errors come back before any
// remote call; ErrMetadataUpdateFailed never reaches callers, it is
// logged inside the send pipeline only.
var (
	ErrUnauthenticated        = errors.New("unauthenticated: caller has no user id")
	ErrNotFound               = errors.New("not found")
	ErrEmptyContent           = errors.New("empty content: message needs text or attachments")
	ErrTooManyAttachments     = errors.New("too many attachments")
	ErrAttachmentUploadFailed = errors.New("attachment upload failed")
	ErrMessageWriteFailed     = errors.New("message write failed")
	ErrMetadataUpdateFailed   = errors.New("thread metadata update failed")
	ErrStoreUnavailable       = errors.New("store unavailable")
)
