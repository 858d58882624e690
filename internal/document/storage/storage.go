// Package storage holds document content. Metadata lives in the document
// store; this package only knows keys and bytes.
package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"

	dErrors "loankyc/pkg/domain-errors"
	strutil "loankyc/pkg/platform/strings"
)

const (
	DefaultMaxSize = 10 << 20
	sniffLen       = 3072
)

// DefaultAllowedTypes are the MIME types accepted for KYC and loan documents.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/webp",
}

// Meta is what the caller knows about the upload before it is stored.
type Meta struct {
	FileName     string
	DeclaredType string
}

// Descriptor is what the storage learned while writing the content.
type Descriptor struct {
	Key       string
	MimeType  string
	SizeBytes int64
	Checksum  string
}

// FileStorage is the content collaborator the document service writes to.
type FileStorage interface {
	Put(ctx context.Context, key string, r io.Reader, meta Meta) (Descriptor, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Local stores content under a base directory. Intended for development and
// single-node deployments.
type Local struct {
	base         string
	maxSize      int64
	allowedTypes []string
}

type LocalOption func(*Local)

func WithMaxSize(n int64) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

func WithAllowedTypes(types ...string) LocalOption {
	return func(l *Local) {
		if types = strutil.DedupeAndTrimLower(types); len(types) > 0 {
			l.allowedTypes = types
		}
	}
}

func NewLocal(base string, opts ...LocalOption) (*Local, error) {
	if strings.TrimSpace(base) == "" {
		return nil, errors.New("storage base path is required")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve storage base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage base path: %w", err)
	}
	l := &Local{base: abs, maxSize: DefaultMaxSize, allowedTypes: DefaultAllowedTypes}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Put sniffs the content type from the first bytes, then streams the content
// to a temporary file while hashing it. The file is renamed into place only
// when the whole body was accepted.
func (l *Local) Put(ctx context.Context, key string, r io.Reader, meta Meta) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, dErrors.Wrap(err, dErrors.CodeTimeout, "upload aborted")
	}
	path, err := l.resolve(key)
	if err != nil {
		return Descriptor{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Descriptor{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return Descriptor{}, dErrors.New(dErrors.CodeValidation, "file is empty")
	}
	detected := mimetype.Detect(head)
	if !l.allowed(detected) {
		return Descriptor{}, dErrors.New(dErrors.CodeValidation, "unsupported file type "+detected.String())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Descriptor{}, fmt.Errorf("create storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return Descriptor{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		return Descriptor{}, fmt.Errorf("init checksum: %w", err)
	}
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), r), l.maxSize+1)
	written, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("write upload: %w", err)
	}
	if written > l.maxSize {
		return Descriptor{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file exceeds %d bytes", l.maxSize))
	}
	if err := ctx.Err(); err != nil {
		return Descriptor{}, dErrors.Wrap(err, dErrors.CodeTimeout, "upload aborted")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Descriptor{}, fmt.Errorf("move upload into place: %w", err)
	}

	return Descriptor{
		Key:       key,
		MimeType:  detected.String(),
		SizeBytes: written,
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, dErrors.New(dErrors.CodeNotFound, "stored file not found")
	}
	return f, err
}

// Delete is idempotent.
func (l *Local) Delete(_ context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// resolve maps key to a path that cannot escape the base directory.
func (l *Local) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "storage key is required")
	}
	path := filepath.Join(l.base, clean)
	if !strings.HasPrefix(path, l.base+string(filepath.Separator)) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid storage key")
	}
	return path, nil
}

func (l *Local) allowed(m *mimetype.MIME) bool {
	for mt := m; mt != nil; mt = mt.Parent() {
		if slices.Contains(l.allowedTypes, mt.String()) {
			return true
		}
	}
	return false
}

// Key builds the storage key for a document. Client-supplied file names never
// reach the filesystem.
func Key(clientID, documentID string) string {
	return "clients/" + clientID + "/" + documentID
}

// SanitizeFileName keeps the base name and replaces anything outside a
// conservative character set.
func SanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 255 {
		out = out[:255]
	}
	return out
}
