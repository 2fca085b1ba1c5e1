package decoder

import (
	"fmt"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Format is a supported barcode format.
type Format string

const (
	FormatQRCode  Format = "QR_CODE"
	FormatCode128 Format = "CODE_128"
	FormatEAN13   Format = "EAN_13"
)

// ParseFormat parses a format name such as "qr_code" or "EAN-13".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch f {
	case FormatQRCode, FormatCode128, FormatEAN13:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

func (f Format) reader() gozxing.Reader {
	switch f {
	case FormatQRCode:
		return qrcode.NewQRCodeReader()
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatEAN13:
		return oned.NewEAN13Reader()
	default:
		return nil
	}
}

// Config is the capture configuration handed to Attach.
type Config struct {
	// FPS is the number of frames decoded per second.
	FPS int `json:"fps"`
	// QRBox is the side of the centered square detection box in pixels.
	// Zero scans the whole frame.
	QRBox int `json:"qr_box"`
	// Formats is the allowlist of formats to decode, tried in order.
	Formats []Format `json:"formats"`
}

// DefaultConfig returns the configuration used when none is resolved.
func DefaultConfig() Config {
	return Config{
		FPS:     10,
		QRBox:   250,
		Formats: []Format{FormatQRCode, FormatCode128, FormatEAN13},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.QRBox < 0 {
		return fmt.Errorf("qr_box must not be negative, got %d", c.QRBox)
	}
	if len(c.Formats) == 0 {
		return fmt.Errorf("at least one format is required")
	}
	for _, f := range c.Formats {
		if f.reader() == nil {
			return fmt.Errorf("unsupported format %q", f)
		}
	}
	return nil
}
