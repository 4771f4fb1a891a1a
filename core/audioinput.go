package orchestration

import (
	"context"
	"fmt"
)

// startCapture starts the microphone and returns a stop function that is safe
// to call more than once.
func startCapture(ctx context.Context, input AudioInput, onAudio func([]byte)) (func(), error) {
	if input == nil {
		return nil, fmt.Errorf("audio input %w", errNotConfigured)
	}

	if err := input.StartCapture(ctx, onAudio); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}

	stopped := false
	return func() {
		if stopped {
			return
		}
		stopped = true
		if err := input.StopCapture(); err != nil {
			logger.Warn("failed to stop capture", "error", err)
		}
	}, nil
}
