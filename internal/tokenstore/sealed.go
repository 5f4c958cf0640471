package tokenstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrNoPassphrase = errors.New("tokenstore: passphrase is required")
	ErrSealBroken   = errors.New("tokenstore: sealed token cannot be opened")
)

const (
	saltSize     = 16
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Sealed is the secure-storage variant of File: the token document is
// encrypted with XChaCha20-Poly1305 under an Argon2id key derived from a
// passphrase and a per-write salt.
type Sealed struct {
	path       string
	passphrase []byte

	mu sync.Mutex
	// The last derived key and its salt. Every gateway request reads the
	// token, and the salt only changes on Set.
	salt []byte
	key  []byte
}

type sealedEnvelope struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func NewSealed(path, passphrase string) (*Sealed, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	return &Sealed{path: path, passphrase: []byte(passphrase)}, nil
}

func (s *Sealed) Get(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := readIfExists(s.path)
	if err != nil || data == nil {
		return "", false, err
	}

	var env sealedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	if env.Version != 1 || len(env.Salt) != saltSize {
		return "", false, ErrSealBroken
	}

	aead, err := chacha20poly1305.NewX(s.keyFor(env.Salt))
	if err != nil {
		return "", false, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return "", false, ErrSealBroken
	}
	plain, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(Key))
	if err != nil {
		return "", false, ErrSealBroken
	}

	doc, err := decodeDocument(plain)
	if err != nil {
		return "", false, err
	}
	token := doc.Values[Key]
	return token, token != "", nil
}

func (s *Sealed) Set(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	plain, err := encodeDocument(token)
	if err != nil {
		return err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(s.keyFor(salt))
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	env := sealedEnvelope{
		Version:    1,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plain, []byte(Key)),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, append(data, '\n'))
}

func (s *Sealed) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var deriveKey = func(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// keyFor must be called with mu held.
func (s *Sealed) keyFor(salt []byte) []byte {
	if s.key != nil && bytes.Equal(s.salt, salt) {
		return s.key
	}
	s.key = deriveKey(s.passphrase, salt)
	s.salt = append([]byte(nil), salt...)
	return s.key
}
