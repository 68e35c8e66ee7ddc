package routes

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-base-service/internal/config"
)

func newUploadRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	cfg := &config.Config{
		MaxFileSize:    1 << 20,
		FileStorageDir: t.TempDir(),
	}
	SetupKnowledgeRoutes(router, cfg, nil, nil, nil)
	return router
}

func uploadRequest(t *testing.T, filename, chunkSize string) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("some plain text content for the upload"))
		require.NoError(t, err)
	}
	if chunkSize != "" {
		require.NoError(t, w.WriteField("chunk_size", chunkSize))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadRejectsMissingFile(t *testing.T) {
	router := newUploadRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	router := newUploadRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "archive.zip", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")
}

func TestUploadValidatesChunkSize(t *testing.T) {
	router := newUploadRouter(t)
	for _, raw := range []string{"100", "50000", "abc"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, uploadRequest(t, "notes.txt", raw))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "chunk_size %q must be rejected", raw)
		assert.Contains(t, rec.Body.String(), "chunk_size", "chunk_size %q", raw)
	}
}
