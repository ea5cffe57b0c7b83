package player

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("no results found")
	ErrResolution      = errors.New("could not resolve track")
	ErrNoActiveSession = errors.New("no active voice session")
	ErrTransport       = errors.New("voice transport error")
	ErrStaleStream     = errors.New("stream url expired")
	ErrQueueFull       = errors.New("queue is full")
	ErrQueueEmpty      = errors.New("queue is already empty")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrNotPlaying      = errors.New("no active stream")
	ErrInvalidVolume   = errors.New("volume must be between 1 and 200")
	ErrVolumeDeferred  = errors.New("volume will apply on the next track")
)

// classifyPlayErr maps a collaborator error from a play attempt onto the
// taxonomy. Anything unrecognised is a transient transport fault.
func classifyPlayErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoActiveSession),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrResolution):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// classifyResolveErr keeps NotFound distinct and folds every other resolver
// failure into ErrResolution.
func classifyResolveErr(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrResolution) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrResolution, err)
}
