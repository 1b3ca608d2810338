// Package media adapts Cloudinary into the send pipeline's upload
// collaborator.
package media

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CloudinaryUploader uploads local attachment references and returns
// their resolved remote URLs.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
	logger *zap.Logger
}

func NewCloudinaryUploader(cloudinaryURL, folder string, logger *zap.Logger) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld, folder: folder, logger: logger}, nil
}

// Upload pushes one local reference (file path or data URI) and returns
// its secure URL.
func (u *CloudinaryUploader) Upload(ctx context.Context, localRef string) (string, error) {
	res, err := u.cld.Upload.Upload(ctx, localRef, uploader.UploadParams{
		Folder:   u.folder,
		PublicID: uuid.New().String(),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}

	u.logger.Debug("attachment uploaded",
		zap.String("public_id", res.PublicID),
		zap.Int("bytes", res.Bytes),
	)
	return res.SecureURL, nil
}
