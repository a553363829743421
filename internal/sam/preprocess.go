package sam

import (
	"image"

	"golang.org/x/image/draw"
)

const encoderInputSize = 1024

var (
	pixelMean = [3]float32{123.675, 116.28, 103.53}
	pixelStd  = [3]float32{58.395, 57.12, 57.375}
)

// resizeScale is the factor mapping original pixel coordinates into the
// encoder input frame.
func resizeScale(width, height int) float32 {
	return float32(encoderInputSize) / float32(max(width, height))
}

// preprocess resizes the longest side to the encoder input size, normalizes
// each channel and zero pads to a square CHW tensor.
func preprocess(img image.Image) []float32 {
	bounds := img.Bounds()
	scale := resizeScale(bounds.Dx(), bounds.Dy())
	w := int(float32(bounds.Dx())*scale + 0.5)
	h := int(float32(bounds.Dy())*scale + 0.5)

	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Src, nil)

	plane := encoderInputSize * encoderInputSize
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := resized.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[off+c])
				data[c*plane+y*encoderInputSize+x] = (v - pixelMean[c]) / pixelStd[c]
			}
		}
	}
	return data
}
