package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
)

// FeedbackThrottle limits block notices to one per session per calendar day
// and suppresses them for messages older than the historical threshold.
// It outlives pipeline rebuilds so a reload does not reset the daily quota.
type FeedbackThrottle struct {
	mu        sync.Mutex
	sent      *expirable.LRU[string, string] // session key -> day of last notice
	threshold time.Duration
	loc       *time.Location
	now       func() time.Time
}

func NewFeedbackThrottle(cfg *config.FeedbackConfig) (*FeedbackThrottle, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("feedback cache size must be positive, got %d", cfg.CacheSize)
	}
	return &FeedbackThrottle{
		sent:      expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
		threshold: cfg.HistoricalThreshold,
		loc:       loc,
		now:       time.Now,
	}, nil
}

// UpdateConfig applies a reloaded threshold and timezone. Cache size and TTL
// keep their startup values.
func (t *FeedbackThrottle) UpdateConfig(cfg *config.FeedbackConfig) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = cfg.HistoricalThreshold
	t.loc = loc
	return nil
}

func sessionKey(ev *event.Event) string {
	if o := strings.TrimSpace(ev.Origin); o != "" {
		return o
	}
	return ev.Platform + ":" + strings.TrimSpace(ev.SenderID)
}

func (t *FeedbackThrottle) today() string {
	return t.now().In(t.loc).Format(time.DateOnly)
}

// IsHistorical reports whether ev was sent longer ago than the threshold.
// Events without a timestamp and events from the future are not historical.
func (t *FeedbackThrottle) IsHistorical(ev *event.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isHistoricalLocked(ev)
}

func (t *FeedbackThrottle) isHistoricalLocked(ev *event.Event) bool {
	ts, ok := ev.Time()
	if !ok {
		return false
	}
	// Whole seconds, like the host's own timestamps.
	return t.now().Unix()-ts.Unix() > int64(t.threshold/time.Second)
}

// ShouldSendFeedback reports whether a notice may go out for ev now. It does
// not record anything.
func (t *FeedbackThrottle) ShouldSendFeedback(ev *event.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldSendLocked(ev)
}

func (t *FeedbackThrottle) shouldSendLocked(ev *event.Event) bool {
	if t.isHistoricalLocked(ev) {
		slog.Debug("Skipping feedback for historical message", "event_id", ev.ID, "origin", ev.Origin)
		return false
	}
	key := sessionKey(ev)
	day, ok := t.sent.Get(key)
	if !ok {
		return true
	}
	if day == t.today() {
		return false
	}
	// Stale entry from an earlier day.
	t.sent.Remove(key)
	return true
}

// MarkSent records that a notice went out for ev's session today.
func (t *FeedbackThrottle) MarkSent(ev *event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent.Add(sessionKey(ev), t.today())
}

// Acquire checks and records in one step, so two concurrent messages from the
// same session cannot both win.
func (t *FeedbackThrottle) Acquire(ev *event.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.shouldSendLocked(ev) {
		return false
	}
	t.sent.Add(sessionKey(ev), t.today())
	return true
}

// Len is the number of sessions currently remembered.
func (t *FeedbackThrottle) Len() int {
	return t.sent.Len()
}
