package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps attachments in a directory and serves them under a
// public base URL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	token := NewToken(filename)
	path := filepath.Join(s.dir, token)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", token, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", token, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close %s: %w", token, err)
	}

	return token, nil
}

func (s *LocalStore) URL(ctx context.Context, token string) (string, error) {
	if !validToken(token) {
		return "", ErrNotFound
	}
	return s.baseURL + "/" + url.PathEscape(token), nil
}

// Open returns the stored file for token.
func (s *LocalStore) Open(token string) (*os.File, error) {
	if !validToken(token) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, token))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *LocalStore) Delete(ctx context.Context, token string) error {
	if !validToken(token) {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(s.dir, token))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
