package matte

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Composite 用 mask 作为 alpha 抠出主体
//
//	透明背景：输出 NRGBA，alpha = mask
//	纯色背景：输出不透明 RGBA，out = fg*m + bg*(1-m)
//
// The source alpha channel is discarded first, so the subject colors are
// the image's RGB values. mask must have the same size as img.
func Composite(img image.Image, mask *image.Gray, bg Background) (image.Image, error) {
	src := toRGB(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if mask.Bounds().Dx() != w || mask.Bounds().Dy() != h {
		return nil, fmt.Errorf("mask size %v does not match image size %dx%d", mask.Bounds().Size(), w, h)
	}

	if bg.Transparent {
		return applyAlpha(src, mask), nil
	}
	return blendOver(src, mask, bg), nil
}

func applyAlpha(src *image.NRGBA, mask *image.Gray) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := y * src.Stride
		mrow := y * mask.Stride
		for x := 0; x < w; x++ {
			src.Pix[row+x*4+3] = mask.Pix[mrow+x]
		}
	}
	return src
}

func blendOver(src *image.NRGBA, mask *image.Gray, bg Background) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	bgc := [3]uint8{bg.Color.R, bg.Color.G, bg.Color.B}

	for y := 0; y < h; y++ {
		srow := y * src.Stride
		drow := y * dst.Stride
		mrow := y * mask.Stride
		for x := 0; x < w; x++ {
			m := int(mask.Pix[mrow+x])
			s := srow + x*4
			d := drow + x*4
			for c := 0; c < 3; c++ {
				dst.Pix[d+c] = blend(src.Pix[s+c], bgc[c], m)
			}
			dst.Pix[d+3] = 0xff
		}
	}
	return dst
}

// blend 与 PIL Image.composite 一致的取整
func blend(fg, bg uint8, m int) uint8 {
	return uint8((int(fg)*m + int(bg)*(255-m) + 127) / 255)
}

// toRGB 复制为 NRGBA 并丢弃 alpha（等价于 convert("RGB")），原点移到 (0,0)
// 非预乘的源直接取 RGB，全透明像素也保留原色
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	case *image.NRGBA64:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := src.NRGBA64At(b.Min.X+x, b.Min.Y+y)
				i := dst.PixOffset(x, y)
				dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = uint8(c.R>>8), uint8(c.G>>8), uint8(c.B>>8)
			}
		}
	case *image.Paletted:
		palette := make([]color.NRGBA, len(src.Palette))
		for i, c := range src.Palette {
			palette[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
		}
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				idx := int(src.ColorIndexAt(b.Min.X+x, b.Min.Y+y))
				if idx >= len(palette) {
					continue
				}
				c := palette[idx]
				i := dst.PixOffset(x, y)
				dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = c.R, c.G, c.B
			}
		}
	default:
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
