package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostedIndex_UpsertChunks_PostsMergeOrUploadBatch(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/indexes/my-index/docs/index", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := NewHostedIndex(srv.URL, "key", "my-index")
	err := idx.UpsertChunks(context.Background(), []Chunk{{ID: "a", Content: "hello"}})
	require.NoError(t, err)

	docs := captured["value"].([]any)
	require.Len(t, docs, 1)
	doc := docs[0].(map[string]any)
	assert.Equal(t, "mergeOrUpload", doc["@search.action"])
	assert.Equal(t, "a", doc["id"])
}

func TestHostedIndex_UpsertChunks_EmptyIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	idx := NewHostedIndex(srv.URL, "key", "my-index")
	require.NoError(t, idx.UpsertChunks(context.Background(), nil))
	assert.False(t, called)
}

func TestHostedIndex_Search_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"id":"a","content":"c1","@search.score":1.5}]}`))
	}))
	defer srv.Close()

	idx := NewHostedIndex(srv.URL, "key", "my-index")
	hits, err := idx.Search(context.Background(), "query", []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Chunk.ID)
	assert.Equal(t, 1.5, hits[0].Score)
}

func TestHostedIndex_DeleteChunksForFile_NoMatchesIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	idx := NewHostedIndex(srv.URL, "key", "my-index")
	require.NoError(t, idx.DeleteChunksForFile(context.Background(), "docs/a.md"))
}

func TestHostedIndex_EnsureIndex_IsNoop(t *testing.T) {
	idx := NewHostedIndex("http://example.invalid", "key", "my-index")
	assert.NoError(t, idx.EnsureIndex(context.Background()))
}
