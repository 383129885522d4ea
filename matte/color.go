package matte

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Transparent 是透明背景的哨兵值
const Transparent = "transparent"

var ErrInvalidColor = errors.New("invalid background color")

// Background is either fully transparent or a solid opaque color.
type Background struct {
	Transparent bool
	Color       color.RGBA
}

// ParseBackground accepts "transparent" or a six digit hex color with any
// number of leading '#'.
func ParseBackground(s string) (Background, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, Transparent) {
		return Background{Transparent: true}, nil
	}

	hex := strings.TrimLeft(s, "#")
	if len(hex) != 6 {
		return Background{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Background{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	return Background{
		Color: color.RGBA{
			R: uint8(v >> 16),
			G: uint8(v >> 8),
			B: uint8(v),
			A: 0xff,
		},
	}, nil
}

// String returns the canonical form: "transparent" or lowercase "#rrggbb".
func (b Background) String() string {
	if b.Transparent {
		return Transparent
	}
	return fmt.Sprintf("#%02x%02x%02x", b.Color.R, b.Color.G, b.Color.B)
}
