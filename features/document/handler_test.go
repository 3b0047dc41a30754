package document_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papyrus/features/document"
)

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandlerUpload(t *testing.T) {
	t.Run("Accepts a txt upload", func(t *testing.T) {
		repo := newFakeRepo()
		pub := &fakePublisher{}
		svc := document.NewService(repo, pub, &fakeChunkStore{})
		h := document.NewHandler(svc, t.TempDir(), 50)

		body, contentType := multipartBody(t, "act.txt", "some document text")
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		h.Upload(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Data document.Document `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "generated-id", resp.Data.ID)
		assert.Equal(t, "act.txt", resp.Data.Name)
		assert.Equal(t, "txt", resp.Data.FileType)
		assert.Equal(t, int64(len("some document text")), resp.Data.FileSize)
		assert.Equal(t, "pending", resp.Data.Status)
		assert.Equal(t, "default", resp.Data.OwnerID, "owner defaults without header")
		require.Len(t, pub.topics, 1)
	})

	t.Run("Owner header scopes the document", func(t *testing.T) {
		repo := newFakeRepo()
		svc := document.NewService(repo, &fakePublisher{}, &fakeChunkStore{})
		h := document.NewHandler(svc, t.TempDir(), 50)

		body, contentType := multipartBody(t, "act.txt", "text")
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-Owner-ID", "team-hr")
		rec := httptest.NewRecorder()

		h.Upload(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, repo.saved, 1)
		assert.Equal(t, "team-hr", repo.saved[0].OwnerID)
	})

	t.Run("Rejects unsupported extension", func(t *testing.T) {
		svc := document.NewService(newFakeRepo(), &fakePublisher{}, &fakeChunkStore{})
		h := document.NewHandler(svc, t.TempDir(), 50)

		body, contentType := multipartBody(t, "data.csv", "a,b,c")
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		h.Upload(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unsupported file type")
	})

	t.Run("Duplicate upload returns conflict", func(t *testing.T) {
		repo := newFakeRepo()
		svc := document.NewService(repo, &fakePublisher{}, &fakeChunkStore{})
		h := document.NewHandler(svc, t.TempDir(), 50)

		send := func() *httptest.ResponseRecorder {
			body, contentType := multipartBody(t, "act.txt", "identical content")
			req := httptest.NewRequest(http.MethodPost, "/documents", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.Upload(rec, req)
			return rec
		}

		first := send()
		require.Equal(t, http.StatusCreated, first.Code)
		repo.hashes[repo.saved[0].ContentHash] = true

		second := send()
		assert.Equal(t, http.StatusConflict, second.Code)
	})

	t.Run("Missing file part", func(t *testing.T) {
		svc := document.NewService(newFakeRepo(), &fakePublisher{}, &fakeChunkStore{})
		h := document.NewHandler(svc, t.TempDir(), 50)

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("name", "no file"))
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		rec := httptest.NewRecorder()

		h.Upload(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlerList(t *testing.T) {
	t.Run("Empty list returns empty array", func(t *testing.T) {
		svc := document.NewService(newFakeRepo(), &fakePublisher{}, &fakeChunkStore{})
		h := document.NewHandler(svc, t.TempDir(), 50)

		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data": [], "meta": {"count": 0}}`, rec.Body.String())
	})
}

func TestHandlerGet(t *testing.T) {
	t.Run("Unknown document returns 404", func(t *testing.T) {
		svc := document.NewService(newFakeRepo(), &fakePublisher{}, &fakeChunkStore{})
		h := document.NewHandler(svc, t.TempDir(), 50)

		req := httptest.NewRequest(http.MethodGet, "/documents/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		h.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlerReprocess(t *testing.T) {
	repo := newFakeRepo()
	repo.docs["doc-1"] = &document.Document{ID: "doc-1", OwnerID: "default"}
	svc := document.NewService(repo, &fakePublisher{}, &fakeChunkStore{})
	h := document.NewHandler(svc, t.TempDir(), 50)

	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/reprocess", nil)
	req.SetPathValue("id", "doc-1")
	rec := httptest.NewRecorder()
	h.Reprocess(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"doc-1"}, repo.resetIDs)
}
