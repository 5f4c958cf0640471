// Package tokenstore persists the single bearer token the client holds.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Key is the name the token is stored under.
const Key = "authToken"

var ErrEmptyToken = errors.New("tokenstore: empty token")

// Store is the contract shared by every platform store. Get reports
// ok=false when no token is stored.
type Store interface {
	Get(ctx context.Context) (token string, ok bool, err error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type Memory struct {
	mu    sync.RWMutex
	token string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "", nil
}

func (m *Memory) Set(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" {
		return ErrEmptyToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// File keeps the token in a small JSON document with 0600 permissions.
type File struct {
	path string
	mu   sync.Mutex
}

type fileDocument struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) Get(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := readIfExists(f.path)
	if err != nil || data == nil {
		return "", false, err
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return "", false, err
	}
	token := doc.Values[Key]
	return token, token != "", nil
}

func (f *File) Set(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" {
		return ErrEmptyToken
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := encodeDocument(token)
	if err != nil {
		return err
	}
	return writeAtomic(f.path, data)
}

func (f *File) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func encodeDocument(token string) ([]byte, error) {
	doc := fileDocument{Version: 1, Values: map[string]string{Key: token}}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeDocument(data []byte) (fileDocument, error) {
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fileDocument{}, err
	}
	if doc.Version != 1 {
		return fileDocument{}, errors.New("tokenstore: unsupported document version")
	}
	return doc, nil
}

func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// writeAtomic replaces path with data via a synced temp file and rename, so
// readers see either the previous document or the new one.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
