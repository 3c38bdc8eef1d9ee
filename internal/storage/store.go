package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/ctmsgb/booking-backend/internal/config"
)

// Store persists payment proofs and returns their public URL
type Store interface {
	Save(ctx context.Context, name string, proof *Proof) (string, error)
	// Delete removes the proof saved under name. Missing proofs are not an error.
	Delete(ctx context.Context, name string) error
}

// NewStore builds the store selected by cfg.Driver
func NewStore(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "cloudinary":
		return NewCloudinaryStore(cfg.CloudinaryURL, cfg.Folder)
	default:
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL), nil
	}
}

// ============================================================================
// LOCAL DISK
// ============================================================================

// LocalStore writes proofs to a directory served as static media
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Save(_ context.Context, name string, proof *Proof) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create proof directory: %w", err)
	}

	filename := name + "." + proof.Ext
	if err := os.WriteFile(filepath.Join(s.dir, filename), proof.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write proof: %w", err)
	}
	return s.baseURL + "/" + filename, nil
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, name+".*"))
	if err != nil {
		return fmt.Errorf("failed to find proof: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove proof: %w", err)
		}
	}
	return nil
}

// ============================================================================
// CLOUDINARY
// ============================================================================

// CloudinaryStore uploads proofs to Cloudinary
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cloudinaryURL, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: folder}, nil
}

func (s *CloudinaryStore) Save(ctx context.Context, name string, proof *Proof) (string, error) {
	result, err := s.cld.Upload.Upload(ctx, bytes.NewReader(proof.Data), uploader.UploadParams{
		PublicID: name,
		Folder:   s.folder,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload proof: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected proof: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, name string) error {
	result, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: path.Join(s.folder, name)})
	if err != nil {
		return fmt.Errorf("failed to delete proof: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("cloudinary rejected delete: %s", result.Error.Message)
	}
	return nil
}
