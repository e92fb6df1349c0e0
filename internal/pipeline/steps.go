package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

// toRGBA copies an arbitrary decoded image into an RGBA buffer so the
// transform steps can work on one pixel layout.
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Copy(dst, image.Point{}, src, bounds, draw.Src, nil)
	return dst
}

// fitSquare scales the image to fit within a size x size square, preserving
// aspect ratio, and centers it on a zero (black) background.
func fitSquare(src image.Image, size int) *image.RGBA {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scale := float64(size) / float64(srcW)
	if h := float64(size) / float64(srcH); h < scale {
		scale = h
	}
	scaledW := int(float64(srcW) * scale)
	scaledH := int(float64(srcH) * scale)
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	offsetX := (size - scaledW) / 2
	offsetY := (size - scaledH) / 2
	target := image.Rect(offsetX, offsetY, offsetX+scaledW, offsetY+scaledH)

	draw.BiLinear.Scale(dst, target, src, bounds, draw.Src, nil)
	return dst
}

// intensityRange returns the minimum and maximum channel intensity over the
// whole image on the 8-bit scale, alpha excluded.
func intensityRange(img *image.RGBA) (lo, hi uint8) {
	lo, hi = 255, 0
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			for _, v := range [3]uint8{c.R, c.G, c.B} {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
		}
	}
	if hi < lo {
		lo, hi = 0, 255
	}
	return lo, hi
}

// stretchIntensity linearly maps the observed intensity range [lo, hi] onto
// the full 8-bit range, returning the observed bounds so callers can log an
// invertible mapping. A flat image (lo == hi) is returned unchanged.
func stretchIntensity(img *image.RGBA) (*image.RGBA, uint8, uint8) {
	lo, hi := intensityRange(img)
	if hi <= lo {
		return img, lo, hi
	}

	scale := 255.0 / float64(hi-lo)
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: stretchChannel(c.R, lo, scale),
				G: stretchChannel(c.G, lo, scale),
				B: stretchChannel(c.B, lo, scale),
				A: c.A,
			})
		}
	}
	return dst, lo, hi
}

func stretchChannel(v, lo uint8, scale float64) uint8 {
	return uint8(clampStep(float64(v-lo)*scale, 0, 255))
}

// sharpenKernel is a fixed 3x3 sharpening convolution.
var sharpenKernel = [3][3]float64{
	{0, -1, 0},
	{-1, 5, -1},
	{0, -1, 0},
}

// sharpen applies the fixed sharpening kernel. Border pixels are copied
// through unchanged.
func sharpen(img *image.RGBA) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	copy(dst.Pix, img.Pix)

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			var r, g, b float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					w := sharpenKernel[ky+1][kx+1]
					if w == 0 {
						continue
					}
					c := img.RGBAAt(x+kx, y+ky)
					r += w * float64(c.R)
					g += w * float64(c.G)
					b += w * float64(c.B)
				}
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: uint8(clampStep(r, 0, 255)),
				G: uint8(clampStep(g, 0, 255)),
				B: uint8(clampStep(b, 0, 255)),
				A: img.RGBAAt(x, y).A,
			})
		}
	}
	return dst
}

// encodePNG serializes the image in the canonical output format.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampStep(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
