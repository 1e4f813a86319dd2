package dvoice

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/voice"
)

// opusSilence is the opus frame for 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// frameProvider buffers encoded opus frames between the transcoder and
// the voice gateway's send loop. A nil frame marks end of stream.
type frameProvider struct {
	frames chan []byte
	ctx    context.Context
	paused *atomic.Bool

	onFinish func()
	once     sync.Once
}

var _ voice.OpusFrameProvider = (*frameProvider)(nil)

func newFrameProvider(ctx context.Context, paused *atomic.Bool, onFinish func()) *frameProvider {
	return &frameProvider{
		frames:   make(chan []byte, 100),
		ctx:      ctx,
		paused:   paused,
		onFinish: onFinish,
	}
}

// push hands a frame to the send loop, dropping it if the stream was
// cancelled. Blocks while the buffer is full so the transcoder cannot
// outrun playback unbounded.
func (p *frameProvider) push(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

// ProvideOpusFrame is called by the gateway every 20ms. While paused it
// returns silence without consuming buffered audio, so resuming picks up
// exactly where playback stopped.
func (p *frameProvider) ProvideOpusFrame() ([]byte, error) {
	if p.paused.Load() {
		return opusSilence, nil
	}
	select {
	case f := <-p.frames:
		if f == nil {
			p.finish()
			return nil, io.EOF
		}
		return f, nil
	case <-p.ctx.Done():
		p.finish()
		return nil, io.EOF
	case <-time.After(500 * time.Millisecond):
		// Transcoder stall, keep the stream alive.
		return opusSilence, nil
	}
}

func (p *frameProvider) Close() {
	p.finish()
}

func (p *frameProvider) finish() {
	p.once.Do(func() {
		if p.onFinish != nil {
			p.onFinish()
		}
	})
}
