package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docpipe/internal/storage"
)

func TestStageBytesWritesContentAndIndex(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewStager(store, nil)

	sf, res, err := s.StageBytes(context.Background(), "filesystem", "/inbox/invoice.pdf", []byte("%PDF-1.7 fake"))
	require.NoError(t, err)

	assert.False(t, res.Deduplicated)
	assert.Equal(t, "pdf", res.FileExt)
	assert.Len(t, res.Checksum, 64)
	assert.Equal(t, res.Checksum, sf.Checksum)
	assert.Equal(t, "invoice.pdf", sf.Filename)

	staged, err := store.GetBytes(context.Background(), StagingKey(res.DocumentID, "invoice.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 fake"), staged)

	idx, err := store.GetBytes(context.Background(), "checksums/"+res.Checksum)
	require.NoError(t, err)
	assert.JSONEq(t,
		fmt.Sprintf(`{"document_id":%q,"filename":"invoice.pdf"}`, res.DocumentID),
		string(idx))
}

func TestStageBytesDeduplicatesByContent(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewStager(store, nil)
	ctx := context.Background()

	_, first, err := s.StageBytes(ctx, "filesystem", "a.pdf", []byte("same bytes"))
	require.NoError(t, err)
	require.False(t, first.Deduplicated)

	// same content under a different name resolves to the original document
	sf, second, err := s.StageBytes(ctx, "email", "b.pdf", []byte("same bytes"))
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.Checksum, second.Checksum)

	// the dedup path reports the originally staged filename, so the
	// staging key still points at the bytes
	assert.Equal(t, "a.pdf", sf.Filename)
	staged, err := store.GetBytes(ctx, StagingKey(second.DocumentID, sf.Filename))
	require.NoError(t, err)
	assert.Equal(t, []byte("same bytes"), staged)
}

func TestStagePathRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.docx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	s := NewStager(storage.NewMemoryStore(), nil)
	_, _, err := s.StagePath(context.Background(), path)
	assert.ErrorContains(t, err, "unsupported")
}

func TestStageDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("inv1.pdf", "first")
	write("sub/inv2.png", "second")
	write("sub/dupe.pdf", "first") // same bytes as inv1.pdf
	write("readme.md", "not a document")
	write(".hidden/secret.pdf", "hidden")

	s := NewStager(storage.NewMemoryStore(), nil)
	results, stats, err := s.StageDirectory(context.Background(), dir, true)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(0), stats.Failed)
	require.Len(t, results, 3)

	byPath := map[string]StagingResult{}
	for _, r := range results {
		byPath[filepath.Base(r.SourcePath)] = r
	}
	assert.True(t, byPath["dupe.pdf"].Deduplicated)
	assert.Equal(t, byPath["inv1.pdf"].DocumentID, byPath["dupe.pdf"].DocumentID)
	assert.NotContains(t, byPath, "secret.pdf")
	assert.NotContains(t, byPath, "readme.md")
}

func TestStageDirectoryRequiresRoot(t *testing.T) {
	s := NewStager(storage.NewMemoryStore(), nil)
	_, _, err := s.StageDirectory(context.Background(), "  ", true)
	assert.Error(t, err)
}

func TestAllowedExtOverride(t *testing.T) {
	s := NewStager(storage.NewMemoryStore(), nil)
	assert.True(t, s.allowed("PDF"))
	assert.False(t, s.allowed("docx"))

	s.AllowedExts = map[string]struct{}{"docx": {}}
	assert.True(t, s.allowed(".docx"))
	assert.False(t, s.allowed("pdf"))
}
