package retrieval

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewQueryLogger(&buf)

	l.Log(QueryLogEntry{
		Query:         "overtime rules",
		OwnerID:       "default",
		NumResults:    4,
		Degraded:      true,
		Duration:      150 * time.Millisecond,
		CorrelationID: "corr-1",
	})

	var entry QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "overtime rules", entry.Query)
	assert.Equal(t, 4, entry.NumResults)
	assert.True(t, entry.Degraded)
	assert.Equal(t, int64(150), entry.LatencyMs)
	assert.Equal(t, "corr-1", entry.CorrelationID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestFileQueryLogger(t *testing.T) {
	path := t.TempDir() + "/logs/query.log"
	l, err := NewFileQueryLogger(path)
	require.NoError(t, err)

	l.Log(QueryLogEntry{Query: "q"})

	assert.FileExists(t, path)
}
