package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"portfolio/internal/pkg/logger"
)

func incoming(name, mimeType, folder string, data []byte) Incoming {
	return Incoming{
		OriginalName: name,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		Folder:       folder,
		Content:      bytes.NewReader(data),
	}
}

func TestService_UploadJPEGGoesToMedia(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	data := jpegBytes(2048)

	file, err := env.svc.Upload(ctx, incoming("photo.jpg", "", "", data))
	require.NoError(t, err)

	assert.Equal(t, FolderImages, file.Folder)
	assert.Equal(t, "image/jpeg", file.MimeType)
	assert.Equal(t, int64(2048), file.Size)
	assert.Equal(t, TableMedia, file.Table)
	assert.Equal(t, "photo.jpg", file.OriginalName)
	assert.True(t, strings.HasPrefix(file.Path, "images/"))
	assert.Equal(t, "/uploads/"+file.Path, file.URL)
	assert.NotEmpty(t, file.ID)

	onDisk, err := os.ReadFile(filepath.Join(env.store.Root(), filepath.FromSlash(file.Path)))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	assert.Equal(t, int64(1), env.countRows(t, TableMedia))
	assert.Equal(t, int64(0), env.countRows(t, TableFiles))
}

func TestService_UploadExplicitFolderWins(t *testing.T) {
	env := setupTestEnv(t)

	file, err := env.svc.Upload(context.Background(), incoming("cv.pdf", "application/pdf", "Resumes", []byte("%PDF-1.4 body")))
	require.NoError(t, err)

	assert.Equal(t, "resumes", file.Folder)
	assert.True(t, strings.HasPrefix(file.Path, "resumes/"))
	assert.Equal(t, TableFiles, file.Table)
	assert.Equal(t, "application/pdf", file.MimeType)
}

func TestService_UploadValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      Incoming
		wantErr error
	}{
		{name: "no content", in: Incoming{OriginalName: "a.txt", Size: 3}, wantErr: ErrNoFile},
		{name: "empty", in: incoming("a.txt", "text/plain", "", nil), wantErr: ErrEmptyFile},
		{name: "declared too large", in: incoming("a.bin", "", "", make([]byte, testMaxSize+1)), wantErr: ErrFileTooLarge},
		{name: "bad folder", in: incoming("a.txt", "text/plain", "../x", []byte("abc")), wantErr: ErrInvalidFolder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Upload(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Zero(t, env.countFiles(t))
	assert.Zero(t, env.countRows(t, TableFiles))
	assert.Zero(t, env.countRows(t, TableMedia))
}

func TestService_UploadStreamLongerThanDeclared(t *testing.T) {
	env := setupTestEnv(t)

	in := Incoming{
		OriginalName: "lie.bin",
		MimeType:     "application/octet-stream",
		Size:         10,
		Content:      bytes.NewReader(make([]byte, testMaxSize*2)),
	}
	_, err := env.svc.Upload(context.Background(), in)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	assert.Zero(t, env.countFiles(t))
	assert.Zero(t, env.countRows(t, TableFiles))
}

func TestService_ConcurrentSameNameUploads(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	results := make(chan *StoredFile, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := env.svc.Upload(ctx, incoming("same.txt", "text/plain", "notes", []byte(fmt.Sprintf("body %d", i))))
			if err != nil {
				errs <- err
				return
			}
			results <- f
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	paths := make(map[string]bool)
	for f := range results {
		assert.False(t, paths[f.Path], "duplicate path %s", f.Path)
		paths[f.Path] = true
	}
	assert.Len(t, paths, n)
	assert.Equal(t, int64(n), env.countRows(t, TableFiles))
	assert.Equal(t, n, env.countFiles(t))
}

func TestService_ListNewestFirst(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		env.svc.now = func() time.Time { return at }
		f, err := env.svc.Upload(ctx, incoming(fmt.Sprintf("n%d.txt", i), "text/plain", "", []byte("x")))
		require.NoError(t, err)
		ids = append(ids, f.ID)
	}

	files, err := env.svc.List(ctx, TableFiles, ListFilter{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{files[0].ID, files[1].ID, files[2].ID})

	limited, err := env.svc.List(ctx, TableFiles, ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ids[2], limited[0].ID)

	none, err := env.svc.List(ctx, TableFiles, ListFilter{Folder: "images"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = env.svc.List(ctx, "users", ListFilter{})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestService_DeleteIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	f, err := env.svc.Upload(ctx, incoming("a.txt", "text/plain", "", []byte("abc")))
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, TableFiles, f.ID))
	ok, err := env.store.Exists(f.Path)
	require.NoError(t, err)
	assert.False(t, ok)

	err = env.svc.Delete(ctx, TableFiles, f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.countRows(t, TableFiles))
}

func TestService_DeleteWithFileAlreadyGone(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	f, err := env.svc.Upload(ctx, incoming("a.png", "image/png", "", []byte("\x89PNG\r\n\x1a\nrest")))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.store.Root(), filepath.FromSlash(f.Path))))

	require.NoError(t, env.svc.Delete(ctx, TableMedia, f.ID))

	_, err = env.svc.Get(ctx, TableMedia, f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_UpdateMetadata(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	f, err := env.svc.Upload(ctx, incoming("a.txt", "text/plain", "", []byte("abc")))
	require.NoError(t, err)

	title := "  Annual report "
	featured := true
	updated, err := env.svc.UpdateMetadata(ctx, TableFiles, f.ID, MetadataUpdate{TitleEn: &title, Featured: &featured})
	require.NoError(t, err)

	assert.Equal(t, "Annual report", updated.TitleEn)
	assert.True(t, updated.Featured)
	assert.Equal(t, f.Path, updated.Path)
	assert.Equal(t, f.Name, updated.Name)
	assert.Equal(t, f.Size, updated.Size)

	_, err = env.svc.UpdateMetadata(ctx, TableFiles, f.ID, MetadataUpdate{})
	assert.ErrorIs(t, err, ErrNoChanges)

	_, err = env.svc.UpdateMetadata(ctx, TableFiles, "missing", MetadataUpdate{TitleEn: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Stats(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Upload(ctx, incoming("a.txt", "text/plain", "", []byte("abcd")))
	require.NoError(t, err)
	_, err = env.svc.Upload(ctx, incoming("b.jpg", "", "", jpegBytes(100)))
	require.NoError(t, err)

	stats, err := env.svc.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byTable := map[string]*TableStats{}
	for _, st := range stats {
		byTable[st.Table] = st
	}
	assert.Equal(t, int64(1), byTable[TableFiles].Files)
	assert.Equal(t, int64(4), byTable[TableFiles].Bytes)
	assert.Equal(t, int64(1), byTable[TableMedia].Files)
	assert.Equal(t, int64(100), byTable[TableMedia].Bytes)
}

func TestService_Audit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	kept, err := env.svc.Upload(ctx, incoming("kept.txt", "text/plain", "", []byte("k")))
	require.NoError(t, err)
	lost, err := env.svc.Upload(ctx, incoming("lost.jpg", "", "", jpegBytes(64)))
	require.NoError(t, err)

	report, err := env.svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 2, report.Files)

	require.NoError(t, os.Remove(filepath.Join(env.store.Root(), filepath.FromSlash(lost.Path))))
	_, err = env.store.EnsureDir("stray")
	require.NoError(t, err)
	_, err = env.store.Save("stray/extra.bin", strings.NewReader("?"))
	require.NoError(t, err)

	report, err = env.svc.Audit(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, []MissingFile{{Table: TableMedia, ID: lost.ID, Path: lost.Path}}, report.MissingFiles)
	assert.Equal(t, []string{"stray/extra.bin"}, report.UntrackedFiles)

	// Audit only reports.
	ok, err := env.store.Exists(kept.Path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), env.countRows(t, TableMedia))
}

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, table string, f *StoredFile) error {
	return m.Called(ctx, table, f).Error(0)
}

func (m *mockRepository) GetByID(ctx context.Context, table, id string) (*StoredFile, error) {
	args := m.Called(ctx, table, id)
	f, _ := args.Get(0).(*StoredFile)
	return f, args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, table string, filter ListFilter) ([]*StoredFile, error) {
	args := m.Called(ctx, table, filter)
	files, _ := args.Get(0).([]*StoredFile)
	return files, args.Error(1)
}

func (m *mockRepository) UpdateMetadata(ctx context.Context, table, id string, fields map[string]any) error {
	return m.Called(ctx, table, id, fields).Error(0)
}

func (m *mockRepository) Delete(ctx context.Context, table, id string) error {
	return m.Called(ctx, table, id).Error(0)
}

func (m *mockRepository) Stats(ctx context.Context, table string) (*TableStats, error) {
	args := m.Called(ctx, table)
	st, _ := args.Get(0).(*TableStats)
	return st, args.Error(1)
}

func newMockService(t *testing.T, repo Repository) (*Service, *DiskStore) {
	t.Helper()
	store := newTestStore(t)
	svc := NewService(repo, store, NewPlacement(store, nil), Options{
		URLPrefix:   "/uploads/",
		MaxFileSize: testMaxSize,
		Tables:      TableSelector{Default: TableFiles},
	}, logger.Discard())
	return svc, store
}

func TestService_CatalogFailureLeavesOrphan(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		wantErr error
	}{
		{name: "path conflict", repoErr: ErrPathConflict, wantErr: ErrPathConflict},
		{name: "database down", repoErr: errors.New("connection refused"), wantErr: ErrCatalogWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepository)
			repo.On("Create", mock.Anything, TableFiles, mock.AnythingOfType("*upload.StoredFile")).Return(tt.repoErr)
			svc, store := newMockService(t, repo)

			_, err := svc.Upload(context.Background(), incoming("a.txt", "text/plain", "", []byte("abc")))
			assert.ErrorIs(t, err, tt.wantErr)

			files := 0
			require.NoError(t, store.Walk(func(string) error { files++; return nil }))
			assert.Equal(t, 1, files, "file stays on disk after a failed catalog write")
			repo.AssertExpectations(t)
		})
	}
}

func TestService_DeleteRemovesRowWhenUnlinkFails(t *testing.T) {
	repo := new(mockRepository)
	svc, store := newMockService(t, repo)

	// A non-empty directory at the row's path cannot be unlinked.
	_, err := store.EnsureDir("files/stuck")
	require.NoError(t, err)
	_, err = store.Save("files/stuck/inner", strings.NewReader("x"))
	require.NoError(t, err)

	row := &StoredFile{ID: "f1", Path: "files/stuck"}
	repo.On("GetByID", mock.Anything, TableFiles, "f1").Return(row, nil)
	repo.On("Delete", mock.Anything, TableFiles, "f1").Return(nil)

	require.NoError(t, svc.Delete(context.Background(), TableFiles, "f1"))
	repo.AssertExpectations(t)
}

func TestService_DeleteUnknownRowTouchesNothing(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newMockService(t, repo)

	repo.On("GetByID", mock.Anything, TableMedia, "nope").Return(nil, ErrNotFound)

	err := svc.Delete(context.Background(), TableMedia, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_URLTrimsPrefix(t *testing.T) {
	svc, _ := newMockService(t, new(mockRepository))
	assert.Equal(t, "/uploads/images/a.png", svc.URL("images/a.png"))
}
