package predictor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/nfnt/resize"
)

// ImageStats are simple luminance statistics of the resized image, both in [0,1].
type ImageStats struct {
	Brightness float64
	Contrast   float64
}

// DefaultMaxPixels caps the declared width*height of an upload (40 MP).
const DefaultMaxPixels = 40_000_000

// decode parses payload and returns it resized to size x size. The header is
// checked first so images declaring more than maxPixels are never allocated.
func decode(payload []byte, size, maxPixels int) (image.Image, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > int64(maxPixels) {
		return nil, fmt.Errorf("%w: image is %dx%d, limit is %d pixels",
			ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}

	return resize.Resize(uint(size), uint(size), img, resize.Bilinear), nil
}

// tensor converts img to normalized RGB float32 values in the requested layout
// and measures brightness and contrast along the way.
func tensor(img image.Image, layout string) ([]float32, ImageStats) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	data := make([]float32, 3*plane)
	var sum, sumSq float64

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rn := float32(r) / 65535.0
			gn := float32(g) / 65535.0
			bn := float32(b) / 65535.0

			i := y*width + x
			if layout == models.LayoutNCHW {
				data[i] = rn
				data[plane+i] = gn
				data[2*plane+i] = bn
			} else {
				data[3*i] = rn
				data[3*i+1] = gn
				data[3*i+2] = bn
			}

			lum := 0.299*float64(rn) + 0.587*float64(gn) + 0.114*float64(bn)
			sum += lum
			sumSq += lum * lum
		}
	}

	n := float64(plane)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return data, ImageStats{Brightness: mean, Contrast: math.Sqrt(variance)}
}
