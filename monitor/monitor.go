// Package monitor tails a set of Certificate Transparency logs and hands
// every newly observed entry to a callback.
package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/moniteur/ctmon/ctlog"
)

// Callback receives each decoded entry. It is invoked from the watcher
// goroutine of the log the entry came from.
type Callback func(*ctlog.Entry)

const (
	seenTTL         = 30 * time.Minute
	seenSweep       = 10 * time.Minute
	retryMaxElapsed = 2 * time.Minute
)

// Monitor polls each configured log's tree head and streams new entries to
// the callback. Monitoring starts at the current tree size: only entries
// appended after Start are delivered.
type Monitor struct {
	cfg    Config
	cb     Callback
	logger *zap.Logger
	hc     *http.Client

	// seen suppresses re-delivery when fetch windows overlap after a
	// partial batch or restart of a watcher loop.
	seen *cache.Cache

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Monitor. logger may be nil for a silent monitor.
func New(cfg Config, cb Callback, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:    cfg,
		cb:     cb,
		logger: logger,
		hc:     &http.Client{Timeout: 30 * time.Second},
		seen:   cache.New(seenTTL, seenSweep),
	}
}

// Start launches one watcher goroutine per configured log and returns. Use
// Stop (or cancel ctx) to shut down.
func (m *Monitor) Start(ctx context.Context) error {
	if len(m.cfg.Logs) == 0 {
		return fmt.Errorf("no logs configured")
	}
	if m.cfg.PollInterval <= 0 || m.cfg.BatchSize == 0 {
		return fmt.Errorf("poll interval and batch size must be positive")
	}
	ctx, m.cancel = context.WithCancel(ctx)
	for _, l := range m.cfg.Logs {
		client := ctlog.NewClient(l, m.hc)
		m.wg.Add(1)
		go m.watch(ctx, client)
	}
	m.logger.Info("monitor started", zap.Int("logs", len(m.cfg.Logs)))
	return nil
}

// Stop cancels all watchers and waits for them to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) watch(ctx context.Context, c *ctlog.Client) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("log", c.Log().URL))

	var sth *ctlog.SignedTreeHead
	err := m.retry(ctx, logger, "get-sth", func() error {
		var err error
		sth, err = c.GetSTH(ctx)
		return err
	})
	if err != nil {
		logger.Warn("giving up on log, initial tree head unavailable", zap.Error(err))
		return
	}

	next := sth.TreeSize
	logger.Debug("watching from current tree head", zap.Uint64("tree_size", next))

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sth, err := c.GetSTH(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("tree head poll failed", zap.Error(err))
			continue
		}
		if sth.TreeSize <= next {
			continue
		}
		next = m.drain(ctx, c, logger, next, sth.TreeSize)
	}
}

// drain fetches entries [start, end) in batches and emits them. It returns
// the index after the last entry actually delivered, so a failed batch is
// retried on the next poll.
func (m *Monitor) drain(ctx context.Context, c *ctlog.Client, logger *zap.Logger, start, end uint64) uint64 {
	for start < end {
		batchEnd := min(start+m.cfg.BatchSize, end) - 1

		var entries []ctlog.RawEntry
		err := m.retry(ctx, logger, "get-entries", func() error {
			var err error
			entries, err = c.GetEntries(ctx, start, batchEnd)
			return err
		})
		if err != nil || len(entries) == 0 {
			if err != nil && ctx.Err() == nil {
				logger.Warn("entry fetch failed", zap.Uint64("start", start), zap.Error(err))
			}
			return start
		}

		for i, raw := range entries {
			m.emit(logger, c.Log(), start+uint64(i), raw)
		}
		start += uint64(len(entries))
	}
	return start
}

func (m *Monitor) emit(logger *zap.Logger, src ctlog.Log, index uint64, raw ctlog.RawEntry) {
	sum := sha256.Sum256(raw.LeafInput)
	key := hex.EncodeToString(sum[:])
	if _, dup := m.seen.Get(key); dup {
		return
	}
	m.seen.Set(key, struct{}{}, cache.DefaultExpiration)

	entry, err := ctlog.DecodeEntry(src, index, raw)
	if err != nil {
		// Malformed payloads abort that one entry, never the watcher.
		logger.Debug("skipping malformed entry", zap.Uint64("index", index), zap.Error(err))
		return
	}
	m.cb(entry)
}

func (m *Monitor) retry(ctx context.Context, logger *zap.Logger, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = retryMaxElapsed

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Debug("retrying "+what, zap.Duration("wait", wait), zap.Error(err))
	})
}
