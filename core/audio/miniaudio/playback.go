package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-docchat/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	leftoverAudio []byte
	marks         []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == nil {
		return fmt.Errorf("device not initialized")
	} else if !device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.leftoverAudio = append(c.leftoverAudio, audio...)
	return nil
}

// ClearBuffer drops queued audio. Pending marks are released immediately so
// nobody waits on audio that will never play.
func (c *playbackClient) ClearBuffer() {
	c.audioMu.Lock()
	c.leftoverAudio = nil
	marks := c.marks
	c.marks = nil
	c.audioMu.Unlock()

	go callMarks(marks)
}

func (c *playbackClient) Mark(mark string, callback func(string)) error {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.marks = append(c.marks, playbackMark{
		name:     mark,
		position: len(c.leftoverAudio),
		callback: callback,
	})
	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	c.device.Uninit()
	c.device = nil
	c.ClearBuffer()

	return nil
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		out := pOutput
		if len(out) > need {
			out = out[:need]
		}

		c.audioMu.Lock()
		passed := c.advanceMarks(need)
		n := copy(out, c.leftoverAudio)
		c.leftoverAudio = c.leftoverAudio[n:]
		c.audioMu.Unlock()

		clear(out[n:])

		if len(passed) > 0 {
			go callMarks(passed)
		}
	}
}

// advanceMarks must be called with audioMu held.
func (c *playbackClient) advanceMarks(played int) []playbackMark {
	passedMarks := 0
	for i, mark := range c.marks {
		if mark.position > played {
			c.marks[i].position -= played
		} else {
			passedMarks++
		}
	}
	if passedMarks == 0 {
		return nil
	}

	passed := c.marks[:passedMarks:passedMarks]
	c.marks = c.marks[passedMarks:]
	return passed
}

func callMarks(marks []playbackMark) {
	for _, mark := range marks {
		mark.callback(mark.name)
	}
}
