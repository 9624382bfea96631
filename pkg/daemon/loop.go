package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/events"
	"github.com/lookingglasspt/lkgcal/pkg/types"
)

// FetchHistory records the last N fetches.
type FetchHistory struct {
	MaxRecordCount int
	records        []types.FetchRecord
	mu             *sync.Mutex
}

// NewFetchHistory returns a new FetchHistory.
func NewFetchHistory(maxRecordCount int) *FetchHistory {
	return &FetchHistory{
		MaxRecordCount: maxRecordCount,
		mu:             &sync.Mutex{},
	}
}

// Add appends r, dropping the oldest record when full.
func (h *FetchHistory) Add(r types.FetchRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Strip monotonic clock reading.
	r.Time = r.Time.Round(0)

	if len(h.records) >= h.MaxRecordCount {
		h.records = h.records[1:]
	}
	h.records = append(h.records, r)
}

// Records returns every record, oldest first.
func (h *FetchHistory) Records() []types.FetchRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]types.FetchRecord{}, h.records...)
}

// ConsecutiveFailures counts failed fetches since the last success.
func (h *FetchHistory) ConsecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Error == "" {
			break
		}
		count++
	}
	return count
}

// calibrationCache holds the last good calibration. A failed fetch never
// replaces it.
type calibrationCache struct {
	mu        sync.RWMutex
	raw       json.RawMessage
	source    config.Source
	fetchedAt time.Time
	lastErr   string

	// fetchMu serializes fetches.
	fetchMu sync.Mutex
	history *FetchHistory
}

func newCalibrationCache() *calibrationCache {
	return &calibrationCache{history: NewFetchHistory(20)}
}

// Get returns the cached calibration, or nil if none was fetched yet.
func (c *calibrationCache) Get() (json.RawMessage, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raw, c.fetchedAt
}

func (c *calibrationCache) store(src config.Source, raw json.RawMessage, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := !bytes.Equal(c.raw, raw)
	c.raw = raw
	c.source = src
	c.fetchedAt = at.Round(0)
	c.lastErr = ""
	return changed
}

// Status summarizes the cache.
func (c *calibrationCache) Status() types.Status {
	c.mu.RLock()
	st := types.Status{
		Source:    string(c.source),
		Available: c.raw != nil,
		FetchedAt: c.fetchedAt,
		LastError: c.lastErr,
	}
	c.mu.RUnlock()

	st.ConsecutiveFailures = c.history.ConsecutiveFailures()
	st.Fetches = c.history.Records()
	return st
}

func (c *calibrationCache) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err.Error()
}

// refreshLoop fetches immediately, then every refresh interval or whenever
// the config is reloaded, until ctx is done.
func refreshLoop(ctx context.Context, reload <-chan struct{}) {
	for {
		if _, err := refresh(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).WithField("consecutiveFailures", cache.history.ConsecutiveFailures()).
				Warn("failed to refresh calibration, keeping the last good value")
		}

		var (
			timer *time.Timer
			tick  <-chan time.Time
		)
		if interval := conf.RefreshInterval(); interval > 0 {
			timer = time.NewTimer(interval)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
		case <-reload:
			logrus.Debug("refreshing after config reload")
		case <-tick:
		}
		if timer != nil {
			timer.Stop()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// refresh fetches a calibration from the configured source and updates the
// cache.
func refresh(ctx context.Context) (json.RawMessage, error) {
	cache.fetchMu.Lock()
	defer cache.fetchMu.Unlock()

	src := conf.Source()
	start := time.Now()

	raw, err := fetch(ctx)
	record := types.FetchRecord{Time: start, Duration: time.Since(start)}
	if err != nil {
		record.Error = err.Error()
		cache.history.Add(record)
		cache.fail(err)
		hub.Publish(events.CalibrationFailed, events.CalibrationFailedEvent{
			Source: string(src),
			Error:  err.Error(),
			Ts:     start.Unix(),
		})
		return nil, err
	}
	cache.history.Add(record)

	if cache.store(src, raw, start) {
		logrus.WithFields(logrus.Fields{
			"source":   src,
			"duration": record.Duration,
		}).Info("calibration updated")
		hub.Publish(events.CalibrationUpdated, events.CalibrationUpdatedEvent{
			Source:      string(src),
			Calibration: raw,
			Ts:          start.Unix(),
		})
	}
	return raw, nil
}

func fetch(ctx context.Context) (json.RawMessage, error) {
	if timeout := conf.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opened, err := openSource(ctx, conf, alerts)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open source %s", conf.Source())
	}
	defer opened.Close()

	raw, err := opened.Library.GetCalibration(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, pkgerrors.Wrap(err, "calibration is not valid JSON")
	}
	return buf.Bytes(), nil
}
