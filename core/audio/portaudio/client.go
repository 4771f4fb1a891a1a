package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-docchat/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-docchat/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

// Client is a duplex blocking PortAudio stream. Capture runs a read loop in
// its own goroutine, playback writes synchronously from SendAudio.
type Client struct {
	bufferSize    int
	stream        *portaudio.Stream
	leftoverAudio []byte

	in  []int16
	out []int16

	streamMu  sync.Mutex
	captureMu sync.Mutex
	stopRead  context.CancelFunc
	readDone  chan struct{}
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.stopRead != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stopRead = cancel
	c.readDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			c.streamMu.Lock()
			err := c.stream.Read()
			frame := bytes.Buffer{}
			if err == nil {
				err = binary.Write(&frame, binary.LittleEndian, c.in)
			}
			c.streamMu.Unlock()
			if err != nil {
				logger.Warn("failed to read from portaudio stream", "error", err)
				continue
			}

			onAudio(frame.Bytes())
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.stopRead == nil {
		return nil
	}

	c.stopRead()
	<-c.readDone
	c.stopRead = nil
	c.readDone = nil
	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	_ = c.stream.Stop()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) SendAudio(audio []byte) error {
	bufferSize := c.bufferSize * 2

	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	audio = append(c.leftoverAudio, audio...)
	for len(audio) >= bufferSize {
		if err := binary.Read(bytes.NewReader(audio[:bufferSize]), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode audio frame: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
		audio = audio[bufferSize:]
	}
	c.leftoverAudio = append([]byte(nil), audio...)

	return nil
}

func (c *Client) ClearBuffer() {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	c.leftoverAudio = nil
}

// Mark flushes any partial frame padded with silence. Writes are blocking, so
// everything sent before the mark has been handed to the device once the
// flush returns.
func (c *Client) Mark(mark string, callback func(string)) error {
	c.streamMu.Lock()
	if len(c.leftoverAudio) > 0 {
		padded := make([]byte, c.bufferSize*2)
		copy(padded, c.leftoverAudio)
		c.leftoverAudio = nil
		if err := binary.Read(bytes.NewReader(padded), binary.LittleEndian, c.out); err == nil {
			if err := c.stream.Write(); err != nil {
				logger.Warn("failed to flush portaudio stream", "error", err)
			}
		}
	}
	c.streamMu.Unlock()

	go callback(mark)
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
