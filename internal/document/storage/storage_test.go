package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	dErrors "loankyc/pkg/domain-errors"
)

var pdfContent = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func newLocal(t *testing.T, opts ...LocalOption) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), opts...)
	require.NoError(t, err)
	return l
}

func TestPutStoresContentWithChecksum(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	desc, err := l.Put(ctx, Key("client-1", "doc-1"), bytes.NewReader(pdfContent), Meta{FileName: "id.pdf"})
	require.NoError(t, err)

	sum := blake2b.Sum256(pdfContent)
	assert.Equal(t, "application/pdf", desc.MimeType)
	assert.Equal(t, int64(len(pdfContent)), desc.SizeBytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), desc.Checksum)

	rc, err := l.Open(ctx, desc.Key)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdfContent, stored)
}

func TestPutRejectsUnsupportedType(t *testing.T) {
	l := newLocal(t)

	_, err := l.Put(context.Background(), "clients/c/d", strings.NewReader("just some text"), Meta{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestPutRejectsEmptyFile(t *testing.T) {
	l := newLocal(t)

	_, err := l.Put(context.Background(), "clients/c/d", bytes.NewReader(nil), Meta{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestPutEnforcesMaxSize(t *testing.T) {
	l := newLocal(t, WithMaxSize(16))

	_, err := l.Put(context.Background(), "clients/c/d", bytes.NewReader(pdfContent), Meta{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, statErr := os.Stat(filepath.Join(l.base, "clients", "c", "d"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPutHonoursCancelledContext(t *testing.T) {
	l := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Put(ctx, "clients/c/d", bytes.NewReader(pdfContent), Meta{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestKeysStayInsideBase(t *testing.T) {
	l := newLocal(t)

	path, err := l.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, l.base+string(filepath.Separator)))

	_, err = l.resolve("   ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestDeleteIsIdempotent(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	_, err := l.Put(ctx, "clients/c/d", bytes.NewReader(pdfContent), Meta{})
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, "clients/c/d"))
	require.NoError(t, l.Delete(ctx, "clients/c/d"))

	_, err = l.Open(ctx, "clients/c/d")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"passport scan.pdf":     "passport_scan.pdf",
		"../../secret.png":      "secret.png",
		`C:\Users\me\photo.jpg`: "photo.jpg",
		"":                      "upload",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFileName(in), in)
	}
}
