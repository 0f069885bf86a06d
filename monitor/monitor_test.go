package monitor

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moniteur/ctmon/ctlog"
)

// x509LeafInput builds a v1 MerkleTreeLeaf wrapping a freshly generated
// self-signed certificate for the given domain.
func x509LeafInput(t *testing.T, domain string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	leaf := []byte{0x00, 0x00}                                 // v1, timestamped_entry
	leaf = binary.BigEndian.AppendUint64(leaf, 1700000000000)  // timestamp
	leaf = binary.BigEndian.AppendUint16(leaf, 0)              // x509_entry
	leaf = append(leaf, byte(len(der)>>16), byte(len(der)>>8), byte(len(der)))
	leaf = append(leaf, der...)
	leaf = binary.BigEndian.AppendUint16(leaf, 0) // no extensions
	return leaf
}

func TestMonitorDeliversNewEntries(t *testing.T) {
	leaf := x509LeafInput(t, "new.example.com")

	var sthCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ct/v1/get-sth":
			size := 2
			if sthCalls.Add(1) > 1 {
				size = 3
			}
			fmt.Fprintf(w, `{"tree_size": %d, "timestamp": 1700000000000, "sha256_root_hash": ""}`, size)
		case "/ct/v1/get-entries":
			assert.Equal(t, "2", r.URL.Query().Get("start"))
			fmt.Fprintf(w, `{"entries": [{"leaf_input": %q, "extra_data": ""}]}`,
				base64.StdEncoding.EncodeToString(leaf))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	got := make(chan *ctlog.Entry, 1)
	cfg := Config{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		Logs:         []ctlog.Log{{URL: srv.URL, Description: "test"}},
	}
	m := New(cfg, func(e *ctlog.Entry) { got <- e }, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	select {
	case entry := <-got:
		assert.Equal(t, uint64(2), entry.Index)
		assert.Equal(t, []string{"new.example.com"}, entry.Domains)
		assert.Equal(t, "test", entry.Source.Description)
	case <-time.After(10 * time.Second):
		t.Fatal("no entry delivered")
	}
}

func TestStartRequiresLogs(t *testing.T) {
	m := New(Config{PollInterval: time.Second, BatchSize: 1}, func(*ctlog.Entry) {}, nil)
	assert.Error(t, m.Start(context.Background()))
}

func TestEmitDeduplicates(t *testing.T) {
	leaf := x509LeafInput(t, "dup.example.com")
	raw := ctlog.RawEntry{LeafInput: leaf}

	var calls int
	m := New(DefaultConfig(), func(*ctlog.Entry) { calls++ }, nil)

	m.emit(zap.NewNop(), ctlog.Log{URL: "https://ct.example.org"}, 1, raw)
	m.emit(zap.NewNop(), ctlog.Log{URL: "https://ct.example.org"}, 1, raw)
	assert.Equal(t, 1, calls)
}

func TestEmitSkipsMalformed(t *testing.T) {
	var calls int
	m := New(DefaultConfig(), func(*ctlog.Entry) { calls++ }, nil)

	m.emit(zap.NewNop(), ctlog.Log{}, 0, ctlog.RawEntry{LeafInput: []byte{0x00, 0x01}})
	assert.Equal(t, 0, calls)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
poll_interval: 5s
logs:
  - url: https://ct.example.org/log
    description: example
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, DefaultConfig().BatchSize, cfg.BatchSize, "unset fields keep defaults")
	require.Len(t, cfg.Logs, 1)
	assert.Equal(t, "https://ct.example.org/log", cfg.Logs[0].URL)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logs:\n  - description: no url\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "without url")
}
