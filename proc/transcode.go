package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/asticode/go-astiav"
)

// Discord expects 20ms stereo Opus frames at 48kHz.
const (
	sampleRate   = 48000
	frameSamples = 960
	bitRate      = 192000
)

var errNoAudioStream = errors.New("input has no audio stream")

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// Transcoder decodes any ffmpeg-readable input and re-encodes it as Opus
// packets sized for the voice gateway.
type Transcoder struct {
	input       *astiav.FormatContext
	decoder     *astiav.CodecContext
	encoder     *astiav.CodecContext
	streamIndex int

	packet    *astiav.Packet
	decoded   *astiav.Frame
	resampled *astiav.Frame
	resampler *astiav.SoftwareResampleContext
	fifo      *astiav.AudioFifo

	reader  io.Reader
	emit    func([]byte)
	pts     int64
	packets int64
}

func NewTranscoder() *Transcoder {
	return &Transcoder{
		packet:      astiav.AllocPacket(),
		decoded:     astiav.AllocFrame(),
		resampled:   astiav.AllocFrame(),
		streamIndex: -1,
	}
}

// Open prepares the input. With r == nil, input is a URL or path that ffmpeg
// opens itself; otherwise the media is read from r and input only names it.
func (t *Transcoder) Open(input string, r io.Reader) error {
	t.input = astiav.AllocFormatContext()
	if t.input == nil {
		return errors.New("failed to allocate format context")
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("probesize", "10000000", 0)
	opts.Set("analyzeduration", "10000000", 0)

	if r != nil {
		t.reader = r
		pb, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
			return t.reader.Read(b)
		}, nil, nil)
		if err != nil {
			return fmt.Errorf("allocate io context: %w", err)
		}
		t.input.SetPb(pb)
		t.input.SetFlags(t.input.Flags().Add(astiav.FormatContextFlagCustomIo))
		opts.Set("fflags", "nobuffer", 0)
	} else if strings.HasPrefix(input, "http") {
		opts.Set("reconnect", "1", 0)
		opts.Set("reconnect_streamed", "1", 0)
		opts.Set("reconnect_delay_max", "30", 0)
		opts.Set("timeout", "30000000", 0)
	}

	if err := t.input.OpenInput(input, nil, opts); err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	if err := t.input.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("find stream info: %w", err)
	}
	for _, s := range t.input.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.streamIndex = s.Index()
			break
		}
	}
	if t.streamIndex < 0 {
		return errNoAudioStream
	}

	if err := t.openDecoder(); err != nil {
		return err
	}
	return t.openEncoder()
}

func (t *Transcoder) openDecoder() error {
	params := t.input.Streams()[t.streamIndex].CodecParameters()
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return fmt.Errorf("no decoder for codec %v", params.CodecID())
	}
	t.decoder = astiav.AllocCodecContext(codec)
	if err := params.ToCodecContext(t.decoder); err != nil {
		return fmt.Errorf("copy codec parameters: %w", err)
	}
	return t.decoder.Open(codec, nil)
}

func (t *Transcoder) openEncoder() error {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		codec = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if codec == nil {
		return errors.New("no opus encoder available")
	}

	t.encoder = astiav.AllocCodecContext(codec)
	t.encoder.SetBitRate(bitRate)
	t.encoder.SetSampleRate(sampleRate)
	t.encoder.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoder.SetSampleFormat(astiav.SampleFormatS16)
	t.encoder.SetTimeBase(astiav.NewRational(1, sampleRate))

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("vbr", "on", 0)
	opts.Set("compression_level", "10", 0)
	opts.Set("frame_size", "20", 0)
	if err := t.encoder.Open(codec, opts); err != nil {
		return fmt.Errorf("open opus encoder: %w", err)
	}

	t.resampler = astiav.AllocSoftwareResampleContext()
	if t.resampler == nil {
		return errors.New("failed to allocate resampler")
	}
	t.fifo = astiav.AllocAudioFifo(t.encoder.SampleFormat(), t.encoder.ChannelLayout().Channels(), frameSamples*2)
	if t.fifo == nil {
		return errors.New("failed to allocate audio fifo")
	}
	return nil
}

// Run transcodes until the input is exhausted or ctx is done, passing every
// Opus packet to emit. It returns nil on a clean end of input.
func (t *Transcoder) Run(ctx context.Context, emit func([]byte)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcoder panic: %v", r)
		}
	}()
	t.emit = emit

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.packet.Unref()
		if err := t.input.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if t.packet.StreamIndex() != t.streamIndex {
			continue
		}
		if err := t.decoder.SendPacket(t.packet); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if err := t.drainDecoder(); err != nil {
			return err
		}
	}

	_ = t.decoder.SendPacket(nil)
	if err := t.drainDecoder(); err != nil {
		return err
	}
	if err := t.encodeFifo(true); err != nil {
		return err
	}

	_ = t.encoder.SendFrame(nil)
	t.receivePackets()
	return nil
}

func (t *Transcoder) drainDecoder() error {
	for t.decoder.ReceiveFrame(t.decoded) == nil {
		err := t.resample()
		t.decoded.Unref()
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Transcoder) resample() error {
	n := astiav.RescaleQ(int64(t.decoded.NbSamples()),
		astiav.NewRational(1, t.decoded.SampleRate()),
		astiav.NewRational(1, sampleRate))
	if n <= 0 {
		return nil
	}

	t.prepareFrame(int(n))
	if err := t.resampler.ConvertFrame(t.decoded, t.resampled); err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	if _, err := t.fifo.Write(t.resampled); err != nil {
		return fmt.Errorf("buffer samples: %w", err)
	}
	return t.encodeFifo(false)
}

// encodeFifo encodes whole frames from the fifo. With flush set, a trailing
// short frame is encoded too.
func (t *Transcoder) encodeFifo(flush bool) error {
	for {
		n := frameSamples
		if size := t.fifo.Size(); size < n {
			if !flush || size == 0 {
				return nil
			}
			n = size
		}

		t.prepareFrame(n)
		if _, err := t.fifo.Read(t.resampled); err != nil {
			return fmt.Errorf("read samples: %w", err)
		}
		t.resampled.SetPts(t.pts)
		t.pts += int64(n)

		if err := t.encoder.SendFrame(t.resampled); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		t.receivePackets()
	}
}

func (t *Transcoder) prepareFrame(samples int) {
	t.resampled.Unref()
	t.resampled.SetChannelLayout(t.encoder.ChannelLayout())
	t.resampled.SetSampleFormat(t.encoder.SampleFormat())
	t.resampled.SetSampleRate(sampleRate)
	t.resampled.SetNbSamples(samples)
	_ = t.resampled.AllocBuffer(0)
}

func (t *Transcoder) receivePackets() {
	for {
		t.packet.Unref()
		if t.encoder.ReceivePacket(t.packet) != nil {
			return
		}
		data := t.packet.Data()
		out := make([]byte, len(data))
		copy(out, data)
		t.packets++
		t.emit(out)
	}
}

// Packets reports how many Opus packets were produced.
func (t *Transcoder) Packets() int64 { return t.packets }

func (t *Transcoder) Close() {
	if t.fifo != nil {
		t.fifo.Free()
	}
	if t.resampler != nil {
		t.resampler.Free()
	}
	if t.resampled != nil {
		t.resampled.Free()
	}
	if t.decoded != nil {
		t.decoded.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.decoder != nil {
		t.decoder.Free()
	}
	if t.encoder != nil {
		t.encoder.Free()
	}
	if t.input != nil {
		t.input.CloseInput()
		t.input.Free()
	}
}
