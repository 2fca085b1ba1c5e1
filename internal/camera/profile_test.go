package camera_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/qrscan/internal/camera"
)

func TestClassifyUserAgent(t *testing.T) {
	tests := []struct {
		ua   string
		want camera.DeviceClass
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", camera.DeviceClassPhone},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", camera.DeviceClassPhone},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", camera.DeviceClassTablet},
		{"Mozilla/5.0 (Linux; Android 13; SM-X700) Safari/537.36", camera.DeviceClassTablet},
		{"Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0", camera.DeviceClassUnspecified},
		{"", camera.DeviceClassUnspecified},
	}
	for _, tt := range tests {
		if got := camera.ClassifyUserAgent(tt.ua); got != tt.want {
			t.Errorf("ClassifyUserAgent(%q) = %s, want %s", tt.ua, got, tt.want)
		}
	}
}

func TestParseDeviceClass(t *testing.T) {
	for in, want := range map[string]camera.DeviceClass{
		"phone": camera.DeviceClassPhone, " Tablet ": camera.DeviceClassTablet, "": camera.DeviceClassUnspecified,
	} {
		got, err := camera.ParseDeviceClass(in)
		if err != nil || got != want {
			t.Errorf("ParseDeviceClass(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := camera.ParseDeviceClass("watch"); err == nil {
		t.Errorf("expected error for unknown class")
	}
}

// The close-range profile never has a lower frame-rate ideal or a higher
// resolution ideal than the distance profile.
func TestDefaultProfilesModeOrdering(t *testing.T) {
	for class, p := range camera.DefaultProfiles() {
		if p.CloseRange.FrameRate.Ideal <= p.Distance.FrameRate.Ideal {
			t.Errorf("%s: close-range frame rate %d not above distance %d", class, p.CloseRange.FrameRate.Ideal, p.Distance.FrameRate.Ideal)
		}
		if p.CloseRange.Width.Ideal >= p.Distance.Width.Ideal {
			t.Errorf("%s: close-range width %d not below distance %d", class, p.CloseRange.Width.Ideal, p.Distance.Width.Ideal)
		}
		if p.Resolution(true) != p.Distance || p.Resolution(false) != p.CloseRange {
			t.Errorf("%s: Resolution() lookup mismatch", class)
		}
	}
}

func TestLoadProfilesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	data := []byte(`
phone:
  facing: user
  preferred_labels: [selfie]
  close_range:
    width: {ideal: 800}
    height: {ideal: 600}
    frame_rate: {ideal: 24}
  distance:
    width: {ideal: 1600}
    height: {ideal: 1200}
    frame_rate: {ideal: 12}
  scan_fps: 5
  qr_box: 200
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := camera.LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles() error = %v", err)
	}
	phone := table.Lookup(camera.DeviceClassPhone)
	if phone.Facing != camera.FacingUser || phone.ScanFPS != 5 || phone.QRBox != 200 {
		t.Errorf("phone override not applied: %+v", phone)
	}
	if phone.Distance.Width.Ideal != 1600 {
		t.Errorf("distance width = %d", phone.Distance.Width.Ideal)
	}
	if table.Lookup(camera.DeviceClassTablet).QRBox != camera.DefaultProfiles()[camera.DeviceClassTablet].QRBox {
		t.Errorf("tablet default should be kept")
	}
}

func TestLoadProfilesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown-class.yaml": "watch:\n  scan_fps: 5\n  qr_box: 100\n",
		"bad-facing.yaml":    "phone:\n  facing: sideways\n  scan_fps: 5\n  qr_box: 100\n",
		"zero-fps.yaml":      "phone:\n  qr_box: 100\n",
		"malformed.yaml":     "phone: [",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := camera.LoadProfiles(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := camera.LoadProfiles(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

// Resolve never exceeds the device limit or the range maximum, and never
// falls below the range minimum when it succeeds.
func TestPropertyRangeResolve(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("resolved value respects bounds", prop.ForAll(
		func(ideal, lo, span, limit int) bool {
			r := camera.Range{Ideal: ideal, Min: lo, Max: lo + span}
			v, ok := r.Resolve(limit)
			if !ok {
				return lo > limit
			}
			return v >= r.Min && v <= r.Max && v <= limit
		},
		gen.IntRange(1, 4000),
		gen.IntRange(1, 2000),
		gen.IntRange(0, 2000),
		gen.IntRange(1, 4000),
	))

	properties.TestingRun(t)
}
