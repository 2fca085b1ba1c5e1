package imagedir

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/clock"
)

// blank is served by devices without images.
var blank = image.NewGray(image.Rect(0, 0, 64, 64))

type stream struct {
	dev    device
	frames []image.Image
	clock  clock.Clock
	start  time.Time

	mu       sync.Mutex
	settings camera.TrackSettings
	stopped  bool
}

func newStream(dev device, settings camera.TrackSettings, frames []image.Image, clk clock.Clock) *stream {
	return &stream{
		dev:      dev,
		frames:   frames,
		clock:    clk,
		start:    clk.Now(),
		settings: settings,
	}
}

func (s *stream) StopAllTracks() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// ApplyConstraints re-resolves the track settings in place. The device id is
// fixed for the lifetime of the stream.
func (s *stream) ApplyConstraints(ctx context.Context, c camera.Constraints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return camera.ErrTrackEnded
	}
	c.DeviceID = s.dev.id
	settings, err := resolve(s.dev, c)
	if err != nil {
		return err
	}
	s.settings = settings
	return nil
}

func (s *stream) Settings() camera.TrackSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// NextFrame returns the frame due at the current clock time for the applied
// frame rate, looping over the device's images.
func (s *stream) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, camera.ErrTrackEnded
	}
	if len(s.frames) == 0 {
		return blank, nil
	}
	elapsed := s.clock.Now().Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}
	index := int(elapsed * time.Duration(s.settings.FrameRate) / time.Second)
	return s.frames[index%len(s.frames)], nil
}
