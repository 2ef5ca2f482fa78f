package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"portfolio/internal/database"
	"portfolio/internal/middleware"
	"portfolio/internal/pkg/logger"
)

const testMaxSize = 4096

type testEnv struct {
	db     *gorm.DB
	repo   Repository
	store  *DiskStore
	svc    *Service
	router *gin.Engine
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:upload_%s?mode=memory&cache=shared", name), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db, log))

	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	repo := NewRepository(db)
	svc := NewService(repo, store, NewPlacement(store, nil), Options{
		URLPrefix:   "/uploads",
		MaxFileSize: testMaxSize,
		Tables: TableSelector{
			Default:  TableFiles,
			ByFolder: map[string]string{FolderImages: TableMedia, FolderVideos: TableMedia},
		},
	}, log)

	h := NewHandler(svc, store)
	r := gin.New()
	pass := func(c *gin.Context) { c.Next() }
	RegisterRoutes(r.Group("/api"), h, pass, middleware.BodyLimit(testMaxSize+middleware.MultipartOverhead))
	RegisterStatic(r, "/uploads", h)

	return &testEnv{db: db, repo: repo, store: store, svc: svc, router: r}
}

func (e *testEnv) countRows(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Table(table).Count(&n).Error)
	return n
}

func (e *testEnv) countFiles(t *testing.T) int {
	t.Helper()
	n := 0
	require.NoError(t, e.store.Walk(func(string) error { n++; return nil }))
	return n
}

// jpegBytes returns size bytes starting with a JPEG/JFIF signature.
func jpegBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	for i := 11; i < size; i++ {
		b[i] = byte(i % 251)
	}
	return b
}

type filePart struct {
	name        string
	contentType string // empty uses the multipart writer default
	data        []byte
}

func multipartBody(t *testing.T, file *filePart, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}

	if file != nil {
		var part io.Writer
		var err error
		if file.contentType == "" {
			part, err = w.CreateFormFile("file", file.name)
		} else {
			hdr := make(textproto.MIMEHeader)
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, file.name))
			hdr.Set("Content-Type", file.contentType)
			part, err = w.CreatePart(hdr)
		}
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) upload(t *testing.T, target string, file *filePart, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, file, fields)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	return e.do(req)
}
