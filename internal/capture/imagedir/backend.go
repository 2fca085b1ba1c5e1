// Package imagedir is a MediaCapture backed by a directory tree. Every
// subdirectory of the root is one device whose frames are the images it
// contains, replayed in name order.
package imagedir

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/models"
	"gopkg.in/yaml.v3"
)

// MetadataFile is the optional per-device metadata file name.
const MetadataFile = "camera.yaml"

// Device limits applied when camera.yaml leaves them unset.
const (
	DefaultMaxWidth     = 1920
	DefaultMaxHeight    = 1080
	DefaultMaxFrameRate = 30
)

// DeviceConfig is the content of camera.yaml.
type DeviceConfig struct {
	Label        string            `yaml:"label"`
	Kind         models.DeviceKind `yaml:"kind"`
	Facing       camera.Facing     `yaml:"facing"`
	MaxWidth     int               `yaml:"max_width"`
	MaxHeight    int               `yaml:"max_height"`
	MaxFrameRate int               `yaml:"max_frame_rate"`
}

func (c *DeviceConfig) applyDefaults(name string) {
	if c.Label == "" {
		c.Label = name
	}
	if c.Kind == "" {
		c.Kind = models.DeviceKindVideoInput
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = DefaultMaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = DefaultMaxHeight
	}
	if c.MaxFrameRate <= 0 {
		c.MaxFrameRate = DefaultMaxFrameRate
	}
}

type device struct {
	id     string
	dir    string
	config DeviceConfig
}

// Backend implements camera.MediaCapture over a directory root.
type Backend struct {
	root   string
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a backend rooted at root.
func New(root string, clk clock.Clock, logger *slog.Logger) *Backend {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{root: root, clock: clk, logger: logger}
}

// Root returns the capture root directory.
func (b *Backend) Root() string {
	return b.root
}

// EnumerateDevices implements camera.MediaCapture. A missing root yields no
// devices; an unreadable root is a permission failure.
func (b *Backend) EnumerateDevices(ctx context.Context) ([]models.CameraDescriptor, error) {
	devices, err := b.scan()
	if err != nil {
		return nil, err
	}
	out := make([]models.CameraDescriptor, len(devices))
	for i, d := range devices {
		out[i] = models.CameraDescriptor{ID: d.id, Label: d.config.Label, Kind: d.config.Kind}
	}
	return out, nil
}

// RequestStream implements camera.MediaCapture.
func (b *Backend) RequestStream(ctx context.Context, c camera.Constraints) (camera.StreamHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devices, err := b.scan()
	if err != nil {
		return nil, err
	}

	dev, err := pick(devices, c)
	if err != nil {
		return nil, err
	}

	settings, err := resolve(dev, c)
	if err != nil {
		return nil, err
	}

	frames, err := loadFrames(dev.dir)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("stream opened",
		"device_id", dev.id,
		"width", settings.Width,
		"height", settings.Height,
		"frame_rate", settings.FrameRate,
		"frames", len(frames),
	)
	return newStream(dev, settings, frames, b.clock), nil
}

func (b *Backend) scan() ([]device, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, nil
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", camera.ErrPermissionDenied, b.root)
		default:
			return nil, fmt.Errorf("reading capture root: %w", err)
		}
	}

	var devices []device
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(b.root, e.Name())
		cfg, err := readConfig(dir)
		if err != nil {
			b.logger.Warn("skipping device with invalid metadata", "device", e.Name(), "error", err)
			continue
		}
		cfg.applyDefaults(e.Name())
		devices = append(devices, device{id: e.Name(), dir: dir, config: cfg})
	}
	return devices, nil
}

func readConfig(dir string) (DeviceConfig, error) {
	var cfg DeviceConfig
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", MetadataFile, err)
	}
	return cfg, nil
}

// pick resolves the requested device. Without a device id the first video
// input matching the facing mode wins, else the first video input.
func pick(devices []device, c camera.Constraints) (device, error) {
	if c.DeviceID != "" {
		for _, d := range devices {
			if d.id == c.DeviceID && d.config.Kind == models.DeviceKindVideoInput {
				return d, nil
			}
		}
		return device{}, fmt.Errorf("%w: %s", camera.ErrDeviceNotFound, c.DeviceID)
	}

	var first *device
	for i := range devices {
		d := &devices[i]
		if d.config.Kind != models.DeviceKindVideoInput {
			continue
		}
		if c.FacingMode == camera.FacingAny || d.config.Facing == c.FacingMode {
			return *d, nil
		}
		if first == nil {
			first = d
		}
	}
	if first == nil {
		return device{}, camera.ErrNoCameraFound
	}
	return *first, nil
}

func resolve(dev device, c camera.Constraints) (camera.TrackSettings, error) {
	settings := camera.TrackSettings{
		DeviceID:   dev.id,
		FacingMode: dev.config.Facing,
		Width:      dev.config.MaxWidth,
		Height:     dev.config.MaxHeight,
		FrameRate:  dev.config.MaxFrameRate,
	}

	fields := []struct {
		name  string
		r     *camera.Range
		limit int
		dst   *int
	}{
		{"width", c.Width, dev.config.MaxWidth, &settings.Width},
		{"height", c.Height, dev.config.MaxHeight, &settings.Height},
		{"frameRate", c.FrameRate, dev.config.MaxFrameRate, &settings.FrameRate},
	}
	for _, f := range fields {
		if f.r == nil {
			continue
		}
		v, ok := f.r.Resolve(f.limit)
		if !ok {
			return settings, fmt.Errorf("%w: %s min %d exceeds %d", camera.ErrOverconstrained, f.name, f.r.Min, f.limit)
		}
		*f.dst = v
	}
	return settings, nil
}

func loadFrames(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("decoding frame %s: %w", name, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
