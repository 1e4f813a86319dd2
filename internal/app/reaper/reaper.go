// Package reaper tears down playback in voice channels that no human is
// listening to anymore.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
)

// Occupancy reports how many human listeners share a voice channel with
// the bot. Bots do not count.
type Occupancy interface {
	HumanCount(guildID, channelID snowflake.ID) int
}

// Stopper disconnects and destroys the playback of a guild.
type Stopper interface {
	Destroy(ctx context.Context, guildID snowflake.ID) error
}

// Reaper watches voice channel occupancy. When the last human leaves, a
// grace timer starts; if nobody comes back before it fires and the
// channel is still empty, the guild's playback is destroyed.
type Reaper struct {
	mu      sync.Mutex
	pending map[snowflake.ID]*time.Timer

	occupancy Occupancy
	stopper   Stopper
	grace     time.Duration
}

// New creates a reaper with the given grace period.
func New(occupancy Occupancy, stopper Stopper, grace time.Duration) *Reaper {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Reaper{
		pending:   make(map[snowflake.ID]*time.Timer),
		occupancy: occupancy,
		stopper:   stopper,
		grace:     grace,
	}
}

// Observe is called on every voice state change in a channel the bot is
// connected to. An empty channel arms the grace timer once, a re-occupied
// channel disarms it.
func (r *Reaper) Observe(guildID, channelID snowflake.ID) {
	if r.occupancy.HumanCount(guildID, channelID) > 0 {
		r.cancel(guildID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, armed := r.pending[guildID]; armed {
		return
	}

	zlog.Debug().Msgf("reaper: channel empty, grace timer armed: guild=%s channel=%s", guildID, channelID)
	r.pending[guildID] = time.AfterFunc(r.grace, func() {
		r.expire(guildID, channelID)
	})
}

// Cancel disarms the timer of a guild, if any. Used when playback is torn
// down for other reasons.
func (r *Reaper) Cancel(guildID snowflake.ID) {
	r.cancel(guildID)
}

// Shutdown disarms every timer.
func (r *Reaper) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for guildID, tm := range r.pending {
		tm.Stop()
		delete(r.pending, guildID)
	}
}

func (r *Reaper) cancel(guildID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tm, ok := r.pending[guildID]; ok {
		tm.Stop()
		delete(r.pending, guildID)
		zlog.Debug().Msgf("reaper: grace timer disarmed: guild=%s", guildID)
	}
}

// expire re-checks occupancy before acting. Someone may have joined
// between the last voice event and the timer firing.
func (r *Reaper) expire(guildID, channelID snowflake.ID) {
	r.mu.Lock()
	if _, ok := r.pending[guildID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pending, guildID)
	r.mu.Unlock()

	if r.occupancy.HumanCount(guildID, channelID) > 0 {
		zlog.Debug().Msgf("reaper: channel re-occupied before expiry: guild=%s", guildID)
		return
	}

	zlog.Info().Msgf("reaper: no listeners left, destroying playback: guild=%s", guildID)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.stopper.Destroy(ctx, guildID); err != nil {
		zlog.Error().Msgf("reaper: failed to destroy playback: guild=%s error=%+v", guildID, err)
	}
}
