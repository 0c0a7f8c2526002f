package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// Storage stages uploaded files on disk between the HTTP handler and the
// provider call that consumes them.
type Storage interface {
	// StoreUpload writes a multipart upload to a temp file and returns its path
	StoreUpload(ctx context.Context, file *multipart.FileHeader) (string, error)

	// Delete removes a staged file
	Delete(ctx context.Context, path string) error
}

// LocalStorage implements Storage using a local temp directory
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &LocalStorage{tempDir: tempDir}, nil
}

func (s *LocalStorage) StoreUpload(ctx context.Context, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	tempFile, err := os.CreateTemp(s.tempDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tempFile.Close()

	if _, err := io.Copy(tempFile, src); err != nil {
		os.Remove(tempFile.Name()) // Clean up on error
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return tempFile.Name(), nil
}

func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	// Verify the path is within our temp directory
	if !strings.HasPrefix(filepath.Clean(path), s.tempDir) {
		return fmt.Errorf("invalid file path: must be within temp directory")
	}
	return os.Remove(path)
}
