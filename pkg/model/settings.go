package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// settingsFormatV1 prefixes every encoded settings blob.
const settingsFormatV1 byte = 1

// ErrUnknownVersion is returned when a blob carries an unsupported format byte.
var ErrUnknownVersion = errors.New("unknown settings format version")

// Encoding names a preferred RFB framebuffer encoding.
type Encoding string

const (
	EncodingTight   Encoding = "tight"
	EncodingZRLE    Encoding = "zrle"
	EncodingHextile Encoding = "hextile"
	EncodingRaw     Encoding = "raw"
)

// ProtocolSettings carries per-profile RFB session preferences.
type ProtocolSettings struct {
	PreferredEncoding   Encoding `json:"preferredEncoding"`
	CompressionLevel    int      `json:"compressionLevel"` // 1..9, -1 disables
	JPEGQuality         int      `json:"jpegQuality"`      // 0..9, -1 disables
	ColorDepth          int      `json:"colorDepth"`       // 0 means server default
	AllowCopyRect       bool     `json:"allowCopyRect"`
	ViewOnly            bool     `json:"viewOnly"`
	SharedFlag          bool     `json:"sharedFlag"`
	ShowRemoteCursor    bool     `json:"showRemoteCursor"`
	AllowClipboard      bool     `json:"allowClipboard"`
	ConvertToASCII      bool     `json:"convertToAscii,omitempty"`
	RemoteCharsetName   string   `json:"remoteCharsetName,omitempty"`
	MouseWheelEmulation bool     `json:"mouseWheelEmulation,omitempty"`
}

// DefaultProtocolSettings mirrors what a fresh viewer offers.
func DefaultProtocolSettings() *ProtocolSettings {
	return &ProtocolSettings{
		PreferredEncoding: EncodingTight,
		CompressionLevel:  -1,
		JPEGQuality:       6,
		AllowCopyRect:     true,
		SharedFlag:        true,
		ShowRemoteCursor:  true,
		AllowClipboard:    true,
	}
}

// Clone returns an independent copy.
func (s *ProtocolSettings) Clone() *ProtocolSettings {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// CopyDataFrom overwrites s in place with the fields of other, keeping the
// pointer identity callers may hold.
func (s *ProtocolSettings) CopyDataFrom(other *ProtocolSettings) {
	if s == nil || other == nil {
		return
	}
	*s = *other
}

var validColorDepths = map[int]bool{0: true, 3: true, 6: true, 8: true, 16: true, 24: true, 32: true}

// Refine clamps values that may have been stored by an older or foreign build.
func (s *ProtocolSettings) Refine() {
	if s.CompressionLevel != -1 && (s.CompressionLevel < 1 || s.CompressionLevel > 9) {
		s.CompressionLevel = -1
	}
	if s.JPEGQuality != -1 && (s.JPEGQuality < 0 || s.JPEGQuality > 9) {
		s.JPEGQuality = -1
	}
	if !validColorDepths[s.ColorDepth] {
		s.ColorDepth = 0
	}
	switch s.PreferredEncoding {
	case EncodingTight, EncodingZRLE, EncodingHextile, EncodingRaw:
	default:
		s.PreferredEncoding = EncodingTight
	}
}

func (s *ProtocolSettings) MarshalBinary() ([]byte, error) {
	return encodeVersioned(s)
}

func (s *ProtocolSettings) UnmarshalBinary(data []byte) error {
	return decodeVersioned(data, s)
}

// ScalingMode selects how the remote framebuffer is fit into the window.
type ScalingMode string

const (
	ScaleNone    ScalingMode = "none"
	ScaleFit     ScalingMode = "fit"
	ScalePercent ScalingMode = "percent"
)

// UiSettings carries per-profile viewer window preferences.
type UiSettings struct {
	Scaling          ScalingMode `json:"scaling"`
	ScalePercent     int         `json:"scalePercent,omitempty"`
	FullScreen       bool        `json:"fullScreen"`
	MouseCursorShape string      `json:"mouseCursorShape,omitempty"`
}

// DefaultUiSettings returns an unscaled windowed layout.
func DefaultUiSettings() *UiSettings {
	return &UiSettings{Scaling: ScaleNone, ScalePercent: 100}
}

// Clone returns an independent copy.
func (u *UiSettings) Clone() *UiSettings {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (u *UiSettings) MarshalBinary() ([]byte, error) {
	return encodeVersioned(u)
}

func (u *UiSettings) UnmarshalBinary(data []byte) error {
	return decodeVersioned(data, u)
}

func encodeVersioned(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return append([]byte{settingsFormatV1}, body...), nil
}

func decodeVersioned(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("decode settings: empty blob")
	}
	if data[0] != settingsFormatV1 {
		return fmt.Errorf("decode settings: %w (%d)", ErrUnknownVersion, data[0])
	}
	if err := json.Unmarshal(data[1:], v); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}
