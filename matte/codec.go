package matte

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// ParseFormat maps a form value to an output format; empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatWebP:
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) ContentType() string {
	if f == FormatWebP {
		return "image/webp"
	}
	return "image/png"
}

// Decode 解码上传的图片，按 EXIF 方向自动旋转
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Encode writes img in the given format. WebP is lossless so the alpha
// matte survives unchanged.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatWebP:
		if err := webp.Encode(w, img, &webp.Options{Lossless: true}); err != nil {
			return fmt.Errorf("encode webp: %w", err)
		}
	case FormatPNG, "":
		if nrgba, ok := img.(*image.NRGBA); ok {
			img = keepAlpha{nrgba}
		}
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	return nil
}

// keepAlpha 让 png 编码器总是写出带 alpha 的 RGBA，即使 mask 全为 255
type keepAlpha struct {
	*image.NRGBA
}

func (keepAlpha) Opaque() bool { return false }
