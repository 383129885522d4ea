package matte

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// MaskFromLogits 对模型输出做 sigmoid，得到 0..255 的前景概率
func MaskFromLogits(data []float32, w, h int) (*image.Gray, error) {
	if len(data) < w*h {
		return nil, fmt.Errorf("mask data too short: got %d, want %d", len(data), w*h)
	}

	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := sigmoid(data[y*w+x])
			// ToPILImage 语义：乘 255 后截断
			mask.Pix[y*mask.Stride+x] = uint8(p * 255)
		}
	}
	return mask, nil
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

// ScaleMask 双线性缩放到原图尺寸
func ScaleMask(mask *image.Gray, w, h int) *image.Gray {
	if mask.Bounds().Dx() == w && mask.Bounds().Dy() == h {
		return mask
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	return dst
}

// ToGray converts an arbitrary image (e.g. a decoded PNG matte) to a
// single-channel mask by luminance.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
