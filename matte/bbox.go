package matte

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

var ErrNoSubject = errors.New("no foreground detected")

// SubjectBounds 从 mask 计算主体 bounding box
// 把 mask > threshold * 255 的像素当作"主体"
func SubjectBounds(mask *image.Gray, threshold float64) (image.Rectangle, error) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	th := uint8(threshold * 255)

	minX, minY := w, h
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < h; y++ {
		row := y * mask.Stride
		for x := 0; x < w; x++ {
			if mask.Pix[row+x] > th {
				found = true
				minX = min(minX, x)
				minY = min(minY, y)
				maxX = max(maxX, x)
				maxY = max(maxY, y)
			}
		}
	}

	if !found {
		return image.Rectangle{}, ErrNoSubject
	}

	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

// CropToSubject trims img to the subject's bounding box. When the mask has
// no foreground the image is returned unchanged.
func CropToSubject(img image.Image, mask *image.Gray, threshold float64) image.Image {
	rect, err := SubjectBounds(mask, threshold)
	if err != nil {
		return img
	}
	cropped := imaging.Crop(img, rect.Add(img.Bounds().Min))
	if _, ok := img.(*image.RGBA); ok {
		// 不透明结果保持 RGBA，编码时仍是三通道
		return &image.RGBA{Pix: cropped.Pix, Stride: cropped.Stride, Rect: cropped.Rect}
	}
	return cropped
}
