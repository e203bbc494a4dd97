package application

import "context"

// Player plays the audio behind a locator and returns once playback has
// finished. Cancelling ctx interrupts playback.
type Player interface {
	Play(ctx context.Context, locator string) error
}
