package ctlog

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSTH(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ct/v1/get-sth", r.URL.Path)
		fmt.Fprint(w, `{"tree_size": 12345, "timestamp": 1700000000000, "sha256_root_hash": "qg=="}`)
	}))
	defer srv.Close()

	c := NewClient(Log{URL: srv.URL + "/", Description: "test log"}, srv.Client())
	sth, err := c.GetSTH(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(12345), sth.TreeSize)
	assert.Equal(t, uint64(1700000000000), sth.Timestamp)
	assert.Equal(t, "test log", c.Log().Description)
}

func TestGetEntries(t *testing.T) {
	leaf := []byte{0x01, 0x02, 0x03}
	extra := []byte{0x04, 0x05}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ct/v1/get-entries", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("start"))
		assert.Equal(t, "11", r.URL.Query().Get("end"))
		fmt.Fprintf(w, `{"entries": [{"leaf_input": %q, "extra_data": %q}]}`,
			base64.StdEncoding.EncodeToString(leaf),
			base64.StdEncoding.EncodeToString(extra))
	}))
	defer srv.Close()

	c := NewClient(Log{URL: srv.URL}, srv.Client())
	entries, err := c.GetEntries(context.Background(), 10, 11)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, leaf, entries[0].LeafInput)
	assert.Equal(t, extra, entries[0].ExtraData)
}

func TestGetEntriesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too far behind", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Log{URL: srv.URL}, srv.Client())

	_, err := c.GetEntries(context.Background(), 5, 4)
	assert.ErrorContains(t, err, "invalid entry range")

	_, err = c.GetEntries(context.Background(), 0, 0)
	assert.ErrorContains(t, err, "400")
}

func TestGetEntriesBadBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entries": [{"leaf_input": "!!!", "extra_data": ""}]}`)
	}))
	defer srv.Close()

	c := NewClient(Log{URL: srv.URL}, srv.Client())
	_, err := c.GetEntries(context.Background(), 0, 0)
	assert.ErrorContains(t, err, "leaf_input")
}
