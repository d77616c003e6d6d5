package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cmpc-libros/apiserver/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	// webp uploads are decodable but stored re-encoded as png.
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImageType is returned when an upload's MIME type is not an
// accepted image format.
var ErrUnsupportedImageType = errors.New("unsupported image type")

// ErrImageNotFound is returned by the explicit removal path when the
// referenced asset does not exist.
var ErrImageNotFound = errors.New("image not found")

// PublicImagePrefix is the path prefix under which cover images are served.
const PublicImagePrefix = "/books/images"

// maxImageDimension bounds both sides of a stored cover image.
const maxImageDimension = 800

var imageFormats = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
	"image/webp": imaging.PNG, // webp is decoded but re-encoded as png
}

var extensionByMime = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".png",
}

// ImageService manages cover image assets: validation, resizing, naming,
// and the storage backend calls. Each book owns at most one live asset.
type ImageService struct {
	store  *storage.Storage
	logger *zap.SugaredLogger
}

func NewImageService(store *storage.Storage, logger *zap.SugaredLogger) *ImageService {
	return &ImageService{store: store, logger: logger}
}

// Save validates, resizes, and persists an uploaded cover image, returning
// its public reference path. The image is bounded to 800x800 preserving
// aspect ratio; smaller images are stored at their original size.
func (s *ImageService) Save(ctx context.Context, data []byte, mimeType, originalFilename string) (string, error) {
	format, ok := imageFormats[mimeType]
	if !ok {
		return "", ErrUnsupportedImageType
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDimension || bounds.Dy() > maxImageDimension {
		img = imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	filename := uuid.NewString() + imageExtension(originalFilename, mimeType)
	if err := s.store.Put(ctx, filename, &buf, int64(buf.Len()), mimeType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	return PublicImagePrefix + "/" + filename, nil
}

// Cleanup deletes the asset behind a reference as part of a replace or
// delete flow. A nil reference or an already-missing asset is not an error;
// the primary operation must never be blocked by cleanup.
func (s *ImageService) Cleanup(ctx context.Context, ref *string) {
	if ref == nil || *ref == "" {
		return
	}
	key := imageKey(*ref)
	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warnw("cover image already absent during cleanup", "key", key)
			return
		}
		s.logger.Errorw("failed to delete cover image", "key", key, "error", err)
	}
}

// Remove deletes the asset behind a reference on an explicit user request.
// Unlike Cleanup it reports a missing asset as ErrImageNotFound.
func (s *ImageService) Remove(ctx context.Context, ref string) error {
	if err := s.store.Delete(ctx, imageKey(ref)); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ErrImageNotFound
		}
		return err
	}
	return nil
}

// Open returns a reader for the stored image with the given filename.
func (s *ImageService) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	r, err := s.store.Get(ctx, path.Base(filename))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return r, nil
}

// imageKey extracts the storage key from a public reference path.
func imageKey(ref string) string {
	if idx := strings.LastIndex(ref, PublicImagePrefix+"/"); idx >= 0 {
		ref = ref[idx+len(PublicImagePrefix)+1:]
	}
	return path.Base(ref)
}

func imageExtension(originalFilename, mimeType string) string {
	ext := strings.ToLower(path.Ext(originalFilename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif":
		if mimeType != "image/webp" {
			return ext
		}
	}
	return extensionByMime[mimeType]
}
