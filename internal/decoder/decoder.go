// Package decoder decodes QR codes and barcodes from live capture streams
// using gozxing.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/models"
)

var (
	// ErrAlreadyAttached is returned by Attach while a loop is running.
	ErrAlreadyAttached = errors.New("decoder already attached")
	// ErrNotAttached is returned by Detach when no loop is running.
	ErrNotAttached = errors.New("decoder not attached")
)

// Per-frame error messages passed to the error callback.
const (
	MsgNoCodeFound   = "No QR code found"
	MsgNoMultiFormat = "No MultiFormat Readers were able to detect the code."
	// MsgTrackEnded is the last message of a loop whose track ended; no
	// callback follows it.
	MsgTrackEnded     = "Video track ended"
	msgParseErrPrefix = "QR code parse error, error = "
)

// SuccessFunc receives a decoded payload.
type SuccessFunc func(payload string)

// ErrorFunc receives a per-frame error message.
type ErrorFunc func(message string)

// Decoder runs a frame loop over one stream at a time.
type Decoder struct {
	capture camera.MediaCapture
	clock   clock.Clock
	logger  *slog.Logger

	mu     sync.Mutex
	active *loop
}

type loop struct {
	mountID string
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a decoder. capture backs EnumerateCameras.
func New(capture camera.MediaCapture, clk clock.Clock, logger *slog.Logger) *Decoder {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{capture: capture, clock: clk, logger: logger}
}

// EnumerateCameras lists video inputs. It fails when permission has not
// been granted by the capture backend.
func (d *Decoder) EnumerateCameras(ctx context.Context) ([]models.CameraDescriptor, error) {
	devices, err := d.capture.EnumerateDevices(ctx)
	if err != nil {
		return nil, err
	}
	return camera.VideoInputs(devices), nil
}

// Attach starts decoding frames from stream into the given mount. Callbacks
// run on the decoder goroutine, one at a time.
func (d *Decoder) Attach(ctx context.Context, mountID string, stream camera.StreamHandle, cfg Config, onSuccess SuccessFunc, onError ErrorFunc) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid decoder config: %w", err)
	}
	if stream == nil {
		return fmt.Errorf("attach %s: no stream", mountID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return ErrAlreadyAttached
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &loop{mountID: mountID, cancel: cancel, done: make(chan struct{})}
	d.active = l

	readers := make([]namedReader, 0, len(cfg.Formats))
	for _, f := range cfg.Formats {
		readers = append(readers, namedReader{format: f, reader: f.reader()})
	}

	ticker := d.clock.NewTicker(time.Second / time.Duration(cfg.FPS))
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		d.run(loopCtx, stream, cfg, readers, onSuccess, onError, ticker)
	}()

	d.logger.Info("decoder attached", "mount_id", mountID, "fps", cfg.FPS, "qr_box", cfg.QRBox)
	return nil
}

// Detach stops the frame loop and waits for it to exit. No callback runs
// after Detach returns.
func (d *Decoder) Detach(ctx context.Context) error {
	d.mu.Lock()
	l := d.active
	d.active = nil
	d.mu.Unlock()

	if l == nil {
		return ErrNotAttached
	}
	l.cancel()

	select {
	case <-l.done:
		d.logger.Info("decoder detached", "mount_id", l.mountID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for decoder loop: %w", ctx.Err())
	}
}

// Attached reports whether a frame loop is running.
func (d *Decoder) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

func (d *Decoder) run(ctx context.Context, stream camera.StreamHandle, cfg Config, readers []namedReader, onSuccess SuccessFunc, onError ErrorFunc, ticker clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		frame, err := stream.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, camera.ErrTrackEnded) {
				onError(MsgTrackEnded)
				return
			}
			onError(fmt.Sprintf("Unable to read video frame: %v", err))
			continue
		}

		text, msg := decodeFrame(frame, cfg.QRBox, readers)
		// a Detach issued while decoding suppresses the callback
		if ctx.Err() != nil {
			return
		}
		if msg != "" {
			onError(msg)
			continue
		}
		onSuccess(text)
	}
}

type namedReader struct {
	format Format
	reader gozxing.Reader
}

// decodeFrame returns the decoded text, or a per-frame error message.
func decodeFrame(frame image.Image, box int, readers []namedReader) (string, string) {
	region := crop(frame, box)
	if region.Bounds().Empty() {
		return "", MsgNoCodeFound
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(region)
	if err != nil {
		return "", MsgNoCodeFound
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	var parseErr error
	for _, r := range readers {
		result, err := r.reader.Decode(bmp, hints)
		r.reader.Reset()
		if err == nil {
			return result.GetText(), ""
		}
		var notFound gozxing.NotFoundException
		if !errors.As(err, &notFound) && parseErr == nil {
			parseErr = err
		}
	}

	if parseErr != nil {
		return "", msgParseErrPrefix + parseErr.Error()
	}
	return "", msgParseErrPrefix + "NotFoundException: " + MsgNoMultiFormat
}

// crop copies the centered box x box region of frame into a new image
// anchored at the origin. The whole frame is used when box is zero or does
// not fit.
func crop(frame image.Image, box int) image.Image {
	b := frame.Bounds()
	if box <= 0 || box >= b.Dx() || box >= b.Dy() {
		return frame
	}
	x0 := b.Min.X + (b.Dx()-box)/2
	y0 := b.Min.Y + (b.Dy()-box)/2
	region := image.NewGray(image.Rect(0, 0, box, box))
	draw.Draw(region, region.Bounds(), frame, image.Pt(x0, y0), draw.Src)
	return region
}
