// Package dvoice adapts the Discord voice gateway to the playback
// transport. It owns the opus pipeline: a remote stream URL goes through
// ffmpeg decode, resample and opus encode, and comes out as 20ms frames
// on the voice connection.
package dvoice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/transport"
)

const openAttempts = 5

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// Connector opens voice connections through a disgo client.
type Connector struct {
	client *bot.Client
}

var _ transport.Connector = (*Connector)(nil)

// NewConnector creates a connector bound to the given client.
func NewConnector(client *bot.Client) *Connector {
	return &Connector{client: client}
}

// Connect joins the voice channel and returns a playback handle. The
// gateway occasionally drops the first open, so a few retries with
// growing backoff are attempted before giving up.
func (c *Connector) Connect(ctx context.Context, guildID, channelID snowflake.ID) (transport.Handle, error) {
	conn := c.client.VoiceManager.CreateConn(guildID)

	var err error
	for attempt := 1; attempt <= openAttempts; attempt++ {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = conn.Open(openCtx, channelID, false, false)
		cancel()
		if err == nil {
			break
		}
		zlog.Warn().Msgf("dvoice: open attempt failed: guild=%s channel=%s attempt=%d error=%v", guildID, channelID, attempt, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn.Close(closeCtx)
		cancel()
		return nil, errors.Wrapf(err, "open voice connection to channel %s", channelID)
	}

	h := &Handle{
		guildID: guildID,
		conn:    conn,
		events:  make(chan transport.Event, 16),
	}
	h.volume.Store(100)
	return h, nil
}

// Handle is one guild's live voice connection.
type Handle struct {
	guildID snowflake.ID
	conn    voice.Conn
	events  chan transport.Event

	mu           sync.Mutex
	streamCancel context.CancelFunc
	streamWg     sync.WaitGroup
	closed       bool

	paused atomic.Bool
	volume atomic.Int32
}

var _ transport.Handle = (*Handle)(nil)

// Play starts streaming the source, replacing any active stream. Input
// probing happens synchronously so a dead URL fails here instead of as
// an async event.
func (h *Handle) Play(ctx context.Context, src *transport.AudioSource) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.New("voice handle closed")
	}
	if h.streamCancel != nil {
		h.streamCancel()
	}
	h.mu.Unlock()
	h.streamWg.Wait()

	tc := newTranscoder(&h.volume)
	if err := tc.openInput(src.StreamURL, src.Live); err != nil {
		tc.close()
		return err
	}
	if err := tc.setupDecoder(); err != nil {
		tc.close()
		return err
	}
	if err := tc.setupEncoder(); err != nil {
		tc.close()
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		tc.close()
		return errors.New("voice handle closed")
	}
	h.streamCancel = cancel
	h.paused.Store(false)
	h.streamWg.Add(1)
	h.mu.Unlock()

	drained := make(chan struct{})
	p := newFrameProvider(streamCtx, &h.paused, func() { close(drained) })

	h.setProvider(p)
	if err := h.conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone); err != nil {
		zlog.Warn().Msgf("dvoice: set speaking failed: guild=%s error=%v", h.guildID, err)
	}
	h.emit(transport.Event{Type: transport.EventPlaying})

	go func() {
		defer h.streamWg.Done()
		defer tc.close()

		err := tc.run(streamCtx, p.push)
		p.push(nil)

		// Let the send loop play out what it buffered.
		select {
		case <-drained:
		case <-streamCtx.Done():
		case <-time.After(10 * time.Second):
		}
		cancel()

		h.setProvider(nil)
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = h.conn.SetSpeaking(sctx, 0)
		scancel()

		if err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error().Msgf("dvoice: stream failed: guild=%s error=%+v", h.guildID, err)
			h.emit(transport.Event{Type: transport.EventError, Err: err})
			return
		}
		h.emit(transport.Event{Type: transport.EventIdle})
	}()
	return nil
}

// Pause holds playback, feeding silence to the gateway.
func (h *Handle) Pause() {
	h.paused.Store(true)
	h.emit(transport.Event{Type: transport.EventPaused})
}

// Resume continues playback from where Pause left it.
func (h *Handle) Resume() {
	h.paused.Store(false)
	h.emit(transport.Event{Type: transport.EventPlaying})
}

// StopPlayback cancels the active stream. The stream goroutine reports
// the resulting idle event.
func (h *Handle) StopPlayback() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streamCancel != nil {
		h.streamCancel()
	}
}

// SetVolume applies a volume percentage to the live stream.
func (h *Handle) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	h.volume.Store(int32(level))
}

// Events returns the playback event stream. The channel closes when the
// handle is closed.
func (h *Handle) Events() <-chan transport.Event {
	return h.events
}

// Close stops any stream and leaves the voice channel.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	if h.streamCancel != nil {
		h.streamCancel()
	}
	h.mu.Unlock()

	h.streamWg.Wait()
	h.conn.Close(ctx)
	close(h.events)
	return nil
}

func (h *Handle) setProvider(p voice.OpusFrameProvider) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Warn().Msgf("dvoice: set frame provider panicked: guild=%s panic=%v", h.guildID, r)
		}
	}()
	h.conn.SetOpusFrameProvider(p)
}

// emit drops events nobody is consuming, which only happens during
// teardown races.
func (h *Handle) emit(ev transport.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	default:
	}
}
