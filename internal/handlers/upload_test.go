package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload/image", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func runUpload(t *testing.T, dir string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/upload/image", UploadImage(dir))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUploadImageStoresFile(t *testing.T) {
	dir := t.TempDir()
	w := runUpload(t, dir, uploadRequest(t, "image", "logo.PNG", []byte("\x89PNG fake")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			ImageURL string `json:"imageUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Data.ImageURL, imageURLPrefix))
	assert.True(t, strings.HasSuffix(resp.Data.ImageURL, ".png"))

	stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(resp.Data.ImageURL, imageURLPrefix)))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), stored)

	require.NoError(t, safeDeleteUpload(dir, resp.Data.ImageURL))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadImageRejections(t *testing.T) {
	dir := t.TempDir()

	w := runUpload(t, dir, uploadRequest(t, "image", "script.exe", []byte("MZ")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = runUpload(t, dir, uploadRequest(t, "file", "logo.png", []byte("png")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = runUpload(t, dir, uploadRequest(t, "image", "huge.jpg", bytes.Repeat([]byte{0xff}, maxImageSize+1)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSafeDeleteUploadRefusesForeignPaths(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, safeDeleteUpload(dir, ""))
	assert.NoError(t, safeDeleteUpload(dir, "/images/missing.png"))
	assert.Error(t, safeDeleteUpload(dir, "/etc/passwd"))
	assert.Error(t, safeDeleteUpload(dir, "/images/.."))
}
