package camera

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeviceClass is a coarse classification of the host device.
type DeviceClass string

const (
	DeviceClassPhone       DeviceClass = "phone"
	DeviceClassTablet      DeviceClass = "tablet"
	DeviceClassUnspecified DeviceClass = "unspecified"
)

// ParseDeviceClass parses a device class name. Empty means unspecified.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch DeviceClass(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceClassPhone:
		return DeviceClassPhone, nil
	case DeviceClassTablet:
		return DeviceClassTablet, nil
	case DeviceClassUnspecified, "":
		return DeviceClassUnspecified, nil
	default:
		return "", fmt.Errorf("unknown device class %q", s)
	}
}

// ClassifyUserAgent derives the device class from a user-agent string.
func ClassifyUserAgent(ua string) DeviceClass {
	ua = strings.ToLower(ua)
	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceClassTablet
	case strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "android"),
		strings.Contains(ua, "mobile"):
		return DeviceClassPhone
	default:
		return DeviceClassUnspecified
	}
}

// Resolution holds the capture targets for one scan mode.
type Resolution struct {
	Width     Range `yaml:"width"`
	Height    Range `yaml:"height"`
	FrameRate Range `yaml:"frame_rate"`
}

// DeviceProfile is the capture policy for a device class.
type DeviceProfile struct {
	Facing Facing `yaml:"facing"`
	// PreferredLabels are matched case-insensitively against camera labels.
	PreferredLabels []string `yaml:"preferred_labels"`
	// CloseRange is used when not zoomed: higher frame rate, lower resolution.
	CloseRange Resolution `yaml:"close_range"`
	// Distance is used when zoomed: lower frame rate, higher resolution.
	Distance Resolution `yaml:"distance"`
	// ScanFPS is the decode rate handed to the decoder.
	ScanFPS int `yaml:"scan_fps"`
	// QRBox is the side of the square detection box in pixels.
	QRBox int `yaml:"qr_box"`
}

// Resolution returns the targets for the given zoom mode.
func (p DeviceProfile) Resolution(zoomed bool) Resolution {
	if zoomed {
		return p.Distance
	}
	return p.CloseRange
}

// Constraints builds a full constraint set for deviceID.
func (p DeviceProfile) Constraints(deviceID string, zoomed bool) Constraints {
	r := p.Resolution(zoomed)
	width, height, rate := r.Width, r.Height, r.FrameRate
	return Constraints{
		DeviceID:   deviceID,
		FacingMode: p.Facing,
		Width:      &width,
		Height:     &height,
		FrameRate:  &rate,
	}
}

// ProfileTable maps device classes to profiles.
type ProfileTable map[DeviceClass]DeviceProfile

var (
	backLabels  = []string{"back", "rear", "environment"}
	frontLabels = []string{"front", "user", "facetime"}
)

// DefaultProfiles returns the built-in profile table.
func DefaultProfiles() ProfileTable {
	return ProfileTable{
		DeviceClassPhone: {
			Facing:          FacingEnvironment,
			PreferredLabels: backLabels,
			CloseRange: Resolution{
				Width:     Range{Ideal: 1280, Min: 640, Max: 1920},
				Height:    Range{Ideal: 720, Min: 480, Max: 1080},
				FrameRate: Range{Ideal: 30, Min: 15, Max: 60},
			},
			Distance: Resolution{
				Width:     Range{Ideal: 1920, Min: 1280, Max: 3840},
				Height:    Range{Ideal: 1080, Min: 720, Max: 2160},
				FrameRate: Range{Ideal: 15, Min: 10, Max: 30},
			},
			ScanFPS: 10,
			QRBox:   280,
		},
		DeviceClassTablet: {
			Facing:          FacingEnvironment,
			PreferredLabels: backLabels,
			CloseRange: Resolution{
				Width:     Range{Ideal: 1280, Min: 640, Max: 1920},
				Height:    Range{Ideal: 720, Min: 480, Max: 1080},
				FrameRate: Range{Ideal: 30, Min: 15, Max: 30},
			},
			Distance: Resolution{
				Width:     Range{Ideal: 1920, Min: 1280, Max: 2560},
				Height:    Range{Ideal: 1080, Min: 720, Max: 1440},
				FrameRate: Range{Ideal: 15, Min: 10, Max: 30},
			},
			ScanFPS: 10,
			QRBox:   280,
		},
		DeviceClassUnspecified: {
			Facing:          FacingUser,
			PreferredLabels: frontLabels,
			CloseRange: Resolution{
				Width:     Range{Ideal: 640, Min: 320, Max: 1280},
				Height:    Range{Ideal: 480, Min: 240, Max: 720},
				FrameRate: Range{Ideal: 30, Min: 15, Max: 60},
			},
			Distance: Resolution{
				Width:     Range{Ideal: 1280, Min: 640, Max: 1920},
				Height:    Range{Ideal: 720, Min: 480, Max: 1080},
				FrameRate: Range{Ideal: 15, Min: 5, Max: 30},
			},
			ScanFPS: 10,
			QRBox:   250,
		},
	}
}

// Lookup returns the profile for class, falling back to unspecified.
func (t ProfileTable) Lookup(class DeviceClass) DeviceProfile {
	if p, ok := t[class]; ok {
		return p
	}
	return t[DeviceClassUnspecified]
}

// LoadProfiles reads a YAML profile file and overlays it on the defaults.
// Classes absent from the file keep their built-in profile.
func LoadProfiles(path string) (ProfileTable, error) {
	table := DefaultProfiles()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	var overrides map[string]DeviceProfile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing profiles: %w", err)
	}

	for name, p := range overrides {
		class, err := ParseDeviceClass(name)
		if err != nil {
			return nil, err
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", class, err)
		}
		table[class] = p
	}
	return table, nil
}

func (p DeviceProfile) validate() error {
	switch p.Facing {
	case FacingAny, FacingUser, FacingEnvironment:
	default:
		return fmt.Errorf("invalid facing %q", p.Facing)
	}
	if p.ScanFPS <= 0 {
		return fmt.Errorf("scan_fps must be positive, got %d", p.ScanFPS)
	}
	if p.QRBox <= 0 {
		return fmt.Errorf("qr_box must be positive, got %d", p.QRBox)
	}
	return nil
}
