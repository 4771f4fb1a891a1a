package orchestration

import (
	"fmt"

	"github.com/google/uuid"
)

// markPlayback places a mark after the audio queued so far. onPlayed is called
// once everything before the mark was played, or the buffer was cleared.
func markPlayback(output AudioOutput, onPlayed func()) error {
	if output == nil {
		return fmt.Errorf("audio output %w", errNotConfigured)
	}

	mark := "speech-end-" + uuid.NewString()
	if err := output.Mark(mark, func(string) { onPlayed() }); err != nil {
		return fmt.Errorf("failed to mark playback: %w", err)
	}
	return nil
}
