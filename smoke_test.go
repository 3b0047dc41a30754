package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	wstore "papyrus/internal/adapter/weaviate"
	"papyrus/internal/app"
	"papyrus/internal/config"
	"papyrus/internal/embedding"
	"papyrus/internal/testutils"
	"papyrus/internal/vector"
)

// stubEmbedder produces deterministic vectors so the smoke test can run
// without an API key. Identical texts embed identically, which is enough
// for the uploaded document to be retrievable by its own content.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string, purpose embedding.Purpose) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		h.Write([]byte(text))
		seed := float32(h.Sum32()%1000) / 1000
		vectors[i] = []float32{seed, 1 - seed, seed / 2, 0.5}
	}
	return vectors, nil
}

func TestSmoke_UploadAndSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	// 1. Start infrastructure
	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	require.NoError(t, vector.EnsureSchema(context.Background(), vector.NewWeaviateClientAdapter(suite.Weaviate)))

	// 2. Configure app against it
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.ServerPort = 8099
	cfg.UploadDir = t.TempDir()
	cfg.QueryLogPath = filepath.Join(t.TempDir(), "query.log")

	chunkStore := wstore.NewStore(suite.Weaviate)
	application, err := app.New(cfg, suite.DB, chunkStore, suite.NSQ, stubEmbedder{})
	require.NoError(t, err)

	// 3. Run in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := application.Run(ctx); err != nil {
			t.Logf("app run exited: %v", err)
		}
	}()

	base := fmt.Sprintf("http://localhost:%d", cfg.ServerPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 500*time.Millisecond)

	// 4. Upload a document
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "handbook.txt")
	require.NoError(t, err)
	fw.Write([]byte("Employees are entitled to seven days of annual leave after one year of service."))
	require.NoError(t, mw.Close())

	resp, err := http.Post(base+"/documents", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.Data.ID)

	// 5. Drive the pipeline directly rather than waiting on an NSQ consumer.
	outcome := application.Pipeline.Process(ctx, created.Data.ID)
	require.NoError(t, outcome.Err)
	require.Equal(t, "completed", outcome.Status)

	// 6. Search for the uploaded content
	searchBody := bytes.NewBufferString(`{"query": "annual leave entitlement"}`)
	searchResp, err := http.Post(base+"/search", "application/json", searchBody)
	require.NoError(t, err)
	defer searchResp.Body.Close()
	require.Equal(t, http.StatusOK, searchResp.StatusCode)
}
