// Package budget implements the Autonomy Budget from spec.md §4.5: two
// sliding-window ring buffers per channel (hourly, daily), plus quiet
// hours and an x/time/rate burst limiter layered on top. State is flushed
// to autonomy-state.json after every mutation (rewrite-then-rename, via
// internal/fsutil), the same atomicity discipline the teacher's
// checkpoint.Store applies per step.
package budget

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vinayprograms/agentcore/internal/fsutil"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// QuietHours is a configured daily do-not-disturb window, in minutes
// since midnight UTC. Wraps past midnight when StartMin > EndMin.
type QuietHours struct {
	Enabled  bool
	StartMin int
	EndMin   int
}

func (q QuietHours) contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	minuteOfDay := t.Hour()*60 + t.Minute()
	if q.StartMin <= q.EndMin {
		return minuteOfDay >= q.StartMin && minuteOfDay < q.EndMin
	}
	return minuteOfDay >= q.StartMin || minuteOfDay < q.EndMin
}

// channelState holds one channel's two ring buffers plus an optional burst limiter.
type channelState struct {
	hourly  []int64 // unix millis, ascending
	daily   []int64
	limiter *rate.Limiter
}

// Limits configures per-channel caps.
type Limits struct {
	HourlyMax  int
	DailyMax   int
	QuietHours QuietHours
	// BurstPerMinute, if > 0, layers a smooth token-bucket cap (via
	// golang.org/x/time/rate) on top of the two hard caps.
	BurstPerMinute int
}

// Budget is the per-process Autonomy Budget, keyed by channelId.
type Budget struct {
	mu        sync.Mutex
	limits    map[string]Limits
	defaults  Limits
	channels  map[string]*channelState
	statePath string
}

// New builds a Budget that flushes to statePath after every mutation.
func New(statePath string, defaults Limits) *Budget {
	return &Budget{
		limits:    make(map[string]Limits),
		defaults:  defaults,
		channels:  make(map[string]*channelState),
		statePath: statePath,
	}
}

// SetLimits overrides limits for a specific channel.
func (b *Budget) SetLimits(channelID string, limits Limits) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[channelID] = limits
}

func (b *Budget) limitsFor(channelID string) Limits {
	if l, ok := b.limits[channelID]; ok {
		return l
	}
	return b.defaults
}

func (b *Budget) stateFor(channelID string) *channelState {
	cs, ok := b.channels[channelID]
	if !ok {
		cs = &channelState{}
		b.channels[channelID] = cs
	}
	return cs
}

func evict(buf []int64, cutoff int64) []int64 {
	i := 0
	for i < len(buf) && buf[i] < cutoff {
		i++
	}
	return buf[i:]
}

// TryConsume evicts timestamps older than each window, rejects if either
// window is at cap or quiet hours are active, else appends now to both
// windows and returns allow=true (spec.md §4.5).
func (b *Budget) TryConsume(channelID string, now time.Time) (allow bool, reasonCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	limits := b.limitsFor(channelID)
	if limits.QuietHours.contains(now) {
		return false, "QUIET_HOURS"
	}

	cs := b.stateFor(channelID)
	nowMs := now.UnixMilli()
	cs.hourly = evict(cs.hourly, nowMs-hourWindow.Milliseconds())
	cs.daily = evict(cs.daily, nowMs-dayWindow.Milliseconds())

	if limits.HourlyMax > 0 && len(cs.hourly) >= limits.HourlyMax {
		return false, "HOURLY_CAP"
	}
	if limits.DailyMax > 0 && len(cs.daily) >= limits.DailyMax {
		return false, "DAILY_CAP"
	}
	if limits.BurstPerMinute > 0 {
		if cs.limiter == nil {
			cs.limiter = rate.NewLimiter(rate.Limit(limits.BurstPerMinute)/60, limits.BurstPerMinute)
		}
		if !cs.limiter.AllowN(now, 1) {
			return false, "BURST_CAP"
		}
	}

	cs.hourly = append(cs.hourly, nowMs)
	cs.daily = append(cs.daily, nowMs)
	_ = b.flushLocked()
	return true, ""
}

// ChannelUsage reports how many timestamps are currently held in each
// window for channelID, after evicting anything older than the window, for
// inspection/display purposes. It does not mutate limiter state.
func (b *Budget) ChannelUsage(channelID string, now time.Time) (hourlyUsed, dailyUsed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs, ok := b.channels[channelID]
	if !ok {
		return 0, 0
	}
	nowMs := now.UnixMilli()
	hourly := evict(cs.hourly, nowMs-hourWindow.Milliseconds())
	daily := evict(cs.daily, nowMs-dayWindow.Milliseconds())
	return len(hourly), len(daily)
}

// LimitsFor exposes a channel's effective Limits (its override, or the
// Budget's defaults), for inspection/display purposes.
func (b *Budget) LimitsFor(channelID string) Limits {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limitsFor(channelID)
}

// ChannelIDs returns every channel with recorded usage, for inspection.
func (b *Budget) ChannelIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.channels))
	for id := range b.channels {
		ids = append(ids, id)
	}
	return ids
}

// snapshot is the persisted shape of autonomy-state.json's budget section.
type snapshot struct {
	Channels map[string]struct {
		Hourly []int64 `json:"hourly"`
		Daily  []int64 `json:"daily"`
	} `json:"channels"`
}

func (b *Budget) flushLocked() error {
	if b.statePath == "" {
		return nil
	}
	var snap snapshot
	snap.Channels = make(map[string]struct {
		Hourly []int64 `json:"hourly"`
		Daily  []int64 `json:"daily"`
	})
	for id, cs := range b.channels {
		snap.Channels[id] = struct {
			Hourly []int64 `json:"hourly"`
			Daily  []int64 `json:"daily"`
		}{Hourly: cs.hourly, Daily: cs.daily}
	}
	return fsutil.WriteJSONAtomic(b.statePath, snap)
}

// Load restores ring-buffer state from statePath, if present.
func (b *Budget) Load() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var snap snapshot
	ok, err := fsutil.ReadJSON(b.statePath, &snap)
	if err != nil || !ok {
		return err
	}
	for id, c := range snap.Channels {
		b.channels[id] = &channelState{hourly: c.Hourly, daily: c.Daily}
	}
	return nil
}
