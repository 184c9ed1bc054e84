package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", "999")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func gunzip(t *testing.T, r io.Reader) string {
	t.Helper()

	zr, err := gzip.NewReader(r)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	return string(body)
}

func TestGzipRoundTrip(t *testing.T) {
	payload := `{"items":[{"product_id":"p1","quantity":2}]}`

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(gzipBytes(t, payload)))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rec := httptest.NewRecorder()

	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Equal(t, payload, gunzip(t, rec.Body))
}

func TestGzipCompressedRequestPlainResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(gzipBytes(t, "cancel please")))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Empty(t, rec.Header().Get("Vary"))
	assert.Equal(t, "cancel please", rec.Body.String())
}

func TestGzipInvalidRequestBody(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("definitely not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestGzipFlushReachesClient(t *testing.T) {
	rec := httptest.NewRecorder()
	flushedRows := ""
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte("id,number\n"))

		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatalf("response writer %T does not implement http.Flusher", w)
		}
		f.Flush()

		flushedRows = gunzipPartial(t, rec.Body.Bytes())

		_, _ = w.Write([]byte("o-1,PC2506011234567\n"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/export/orders?format=csv", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	GzipMiddleware(next).ServeHTTP(rec, req)

	assert.True(t, rec.Flushed)
	assert.Equal(t, "id,number\n", flushedRows)
	assert.Equal(t, "id,number\no-1,PC2506011234567\n", gunzip(t, rec.Body))
}

// gunzipPartial читает сжатый поток, который ещё не закрыт писателем.
func gunzipPartial(t *testing.T, b []byte) string {
	t.Helper()

	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	out, err := io.ReadAll(zr)
	if err != nil && err != io.ErrUnexpectedEOF {
		t.Fatalf("read flushed gzip: %v", err)
	}
	return string(out)
}
