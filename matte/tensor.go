package matte

import (
	"image"

	"github.com/nfnt/resize"
)

// ImageNet 均值和方差
var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

// ToTensor 把图片缩放为 size×size，归一化后按 NCHW 排列
func ToTensor(img image.Image, size int) []float32 {
	buf := make([]float32, 3*size*size)
	FillTensor(buf, img, size)
	return buf
}

// FillTensor writes the normalized NCHW tensor of img into dst, which must
// hold at least 3*size*size values. Alpha is ignored.
func FillTensor(dst []float32, img image.Image, size int) {
	resized := toNRGBA(resize.Resize(uint(size), uint(size), toRGB(img), resize.Bilinear))

	channelSize := size * size
	for y := 0; y < size; y++ {
		row := y * resized.Stride
		for x := 0; x < size; x++ {
			i := y*size + x
			p := row + x*4
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[p+c]) / 255.0
				dst[c*channelSize+i] = (v - Mean[c]) / Std[c]
			}
		}
	}
}
