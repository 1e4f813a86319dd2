package dvoice

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/cockroachdb/errors"
)

const (
	sampleRate     = 48000
	frameSamples   = 960
	encoderBitRate = 192000
)

// transcoder turns an arbitrary remote audio stream into 20ms opus
// frames at 48kHz stereo, the only format the voice gateway accepts.
// Decoded audio is resampled into a FIFO and drained in fixed-size
// frames so the encoder always sees full 20ms windows.
type transcoder struct {
	inputCtx         *astiav.FormatContext
	decoderCtx       *astiav.CodecContext
	encoderCtx       *astiav.CodecContext
	audioStreamIndex int
	packet           *astiav.Packet
	frame            *astiav.Frame
	resampleCtx      *astiav.SoftwareResampleContext
	resampleFrame    *astiav.Frame
	fifo             *astiav.AudioFifo
	pts              int64
	onFrame          func([]byte)

	// volume is a percentage in [0,100], applied to raw samples before
	// encoding so it takes effect mid-track.
	volume *atomic.Int32
}

func newTranscoder(volume *atomic.Int32) *transcoder {
	return &transcoder{
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
		volume:        volume,
	}
}

// openInput opens the remote stream. HTTP inputs reconnect on transient
// drops, which keeps long tracks alive across CDN hiccups.
func (t *transcoder) openInput(url string, live bool) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("alloc format context failed")
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("reconnect", "1", 0)
	opts.Set("reconnect_streamed", "1", 0)
	opts.Set("reconnect_delay_max", "30", 0)
	opts.Set("timeout", "30000000", 0)
	if !live {
		opts.Set("reconnect_at_eof", "1", 0)
	}

	if err := t.inputCtx.OpenInput(url, nil, opts); err != nil {
		return errors.Wrap(err, "open input")
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return errors.Wrap(err, "find stream info")
	}

	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("input has no audio stream")
	}
	return nil
}

func (t *transcoder) setupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.Newf("no decoder for codec %s", p.CodecID())
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	if err := p.ToCodecContext(t.decoderCtx); err != nil {
		return errors.Wrap(err, "apply codec parameters")
	}
	return errors.Wrap(t.decoderCtx.Open(d, nil), "open decoder")
}

func (t *transcoder) setupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no opus encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(encoderBitRate)
	t.encoderCtx.SetSampleRate(sampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, sampleRate))

	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return errors.Wrap(err, "open encoder")
	}

	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("alloc resample context failed")
	}
	return nil
}

// run pumps the stream until EOF or cancellation, handing every encoded
// opus frame to onFrame.
func (t *transcoder) run(ctx context.Context, onFrame func([]byte)) error {
	defer t.packet.Unref()
	t.onFrame = onFrame

	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), frameSamples*2)
	defer func() {
		t.fifo.Free()
		t.fifo = nil
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return errors.Wrap(err, "read frame")
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			t.packet.Unref()
			continue
		}
		if err := t.decoderCtx.SendPacket(t.packet); err != nil {
			t.packet.Unref()
			return errors.Wrap(err, "send packet")
		}
		t.packet.Unref()

		for {
			if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
				break
			}
			if err := t.resampleToFifo(); err != nil {
				t.frame.Unref()
				return err
			}
			t.frame.Unref()
			if err := t.drainFifo(frameSamples); err != nil {
				return err
			}
		}
	}

	t.flush()
	return nil
}

// resampleToFifo converts the decoded frame into the encoder's format
// and appends it to the FIFO.
func (t *transcoder) resampleToFifo() error {
	t.resampleFrame.Unref()
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())

	nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()),
		astiav.NewRational(1, t.frame.SampleRate()),
		astiav.NewRational(1, t.encoderCtx.SampleRate())))
	if nb <= 0 {
		return nil
	}
	t.resampleFrame.SetNbSamples(nb)
	if err := t.resampleFrame.AllocBuffer(0); err != nil {
		return errors.Wrap(err, "alloc resample buffer")
	}
	if err := t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame); err != nil {
		return errors.Wrap(err, "convert frame")
	}
	if _, err := t.fifo.Write(t.resampleFrame); err != nil {
		return errors.Wrap(err, "fifo write")
	}
	return nil
}

// drainFifo encodes full frames while at least min samples are queued.
func (t *transcoder) drainFifo(min int) error {
	for t.fifo.Size() >= min {
		sz := frameSamples
		if t.fifo.Size() < sz {
			sz = t.fifo.Size()
		}
		t.resampleFrame.Unref()
		t.resampleFrame.SetNbSamples(sz)
		t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
		t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
		t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
		if err := t.resampleFrame.AllocBuffer(0); err != nil {
			return errors.Wrap(err, "alloc frame buffer")
		}
		if _, err := t.fifo.Read(t.resampleFrame); err != nil {
			return errors.Wrap(err, "fifo read")
		}
		t.applyVolume(t.resampleFrame)
		t.resampleFrame.SetPts(atomic.LoadInt64(&t.pts))
		atomic.AddInt64(&t.pts, int64(sz))
		if err := t.encodeAndEmit(t.resampleFrame); err != nil {
			return err
		}
	}
	return nil
}

// applyVolume scales interleaved s16 samples in place.
func (t *transcoder) applyVolume(f *astiav.Frame) {
	vol := int64(t.volume.Load())
	if vol == 100 {
		return
	}
	b, err := f.Data().Bytes(0)
	if err != nil || len(b) < 2 {
		return
	}
	for i := 0; i+1 < len(b); i += 2 {
		sample := int64(int16(binary.LittleEndian.Uint16(b[i:])))
		scaled := sample * vol / 100
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(b[i:], uint16(int16(scaled)))
	}
	_ = f.Data().SetBytes(b, 0)
}

func (t *transcoder) encodeAndEmit(f *astiav.Frame) error {
	if err := t.encoderCtx.SendFrame(f); err != nil {
		return errors.Wrap(err, "send frame")
	}
	return t.receivePackets()
}

func (t *transcoder) receivePackets() error {
	for {
		p := astiav.AllocPacket()
		if t.encoderCtx.ReceivePacket(p) != nil {
			p.Free()
			return nil
		}
		d := p.Data()
		fd := make([]byte, len(d))
		copy(fd, d)
		t.onFrame(fd)
		p.Free()
	}
}

// flush drains the decoder, the FIFO remainder and the encoder. Errors
// here only cost the final partial frame, so they are ignored.
func (t *transcoder) flush() {
	_ = t.decoderCtx.SendPacket(nil)
	for {
		if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
			break
		}
		_ = t.resampleToFifo()
		t.frame.Unref()
	}
	_ = t.drainFifo(1)

	_ = t.encoderCtx.SendFrame(nil)
	_ = t.receivePackets()
}

func (t *transcoder) close() {
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
