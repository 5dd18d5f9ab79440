package predictor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"testing"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensor_Layouts(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{G: 255, A: 255})

	hwc, _ := tensor(img, models.LayoutNHWC)
	assert.Equal(t, []float32{1, 0, 0, 0, 1, 0}, hwc)

	chw, _ := tensor(img, models.LayoutNCHW)
	assert.Equal(t, []float32{1, 0, 0, 1, 0, 0}, chw)
}

func TestTensor_Stats(t *testing.T) {
	white := image.NewUniform(color.White)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, white.C)
		}
	}

	_, stats := tensor(img, models.LayoutNHWC)
	assert.InDelta(t, 1.0, stats.Brightness, 1e-6)
	assert.InDelta(t, 0.0, stats.Contrast, 1e-3)

	half := image.NewGray(image.Rect(0, 0, 2, 1))
	half.SetGray(0, 0, color.Gray{Y: 0})
	half.SetGray(1, 0, color.Gray{Y: 255})

	_, stats = tensor(half, models.LayoutNHWC)
	assert.InDelta(t, 0.5, stats.Brightness, 1e-3)
	assert.InDelta(t, 0.5, stats.Contrast, 1e-3)
}

func TestDecode_Empty(t *testing.T) {
	_, err := decode(nil, 8, DefaultMaxPixels)
	require.ErrorIs(t, err, ErrDecode)
}

func TestDecode_PixelLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 100, 50))))

	img, err := decode(buf.Bytes(), 8, 5000)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = decode(buf.Bytes(), 8, 4999)
	require.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "100x50")
}

func TestDecode_HugeDeclaredSizeRejectedBeforeAllocation(t *testing.T) {
	if testing.Short() {
		t.Skip("encodes a 144 MP fixture")
	}
	// 12000x12000 grayscale compresses to a few hundred KB.
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	require.NoError(t, enc.Encode(&buf, image.NewGray(image.Rect(0, 0, 12000, 12000))))

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := decode(buf.Bytes(), 8, DefaultMaxPixels)
	runtime.ReadMemStats(&after)

	require.ErrorIs(t, err, ErrDecode)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestEstimateWeight(t *testing.T) {
	neutral := ImageStats{Brightness: 0.5, Contrast: 0.25}

	assert.Equal(t, 650.0, estimateWeight(650, 0.5, neutral, 0, 200, 1200))
	assert.Equal(t, 690.0, estimateWeight(650, 0.9, neutral, 0, 200, 1200))
	assert.Equal(t, 700.0, estimateWeight(650, 0.5, neutral, 1, 200, 1200))
	assert.Equal(t, 200.0, estimateWeight(50, 0.1, neutral, -1, 200, 1200))
	assert.Equal(t, 1200.0, estimateWeight(5000, 1, neutral, 1, 200, 1200))
	assert.Equal(t, 670.0, estimateWeight(650, 0.5, ImageStats{Brightness: 1, Contrast: 0.25}, 0, 200, 1200))
}

func TestEstimateWeight_FractionalBounds(t *testing.T) {
	neutral := ImageStats{Brightness: 0.5, Contrast: 0.25}

	assert.Equal(t, 640.04, estimateWeight(650, 0.5, neutral, -1, 640.04, 659.96))
	assert.Equal(t, 659.96, estimateWeight(650, 0.5, neutral, 1, 640.04, 659.96))
	assert.Equal(t, 650.0, estimateWeight(650, 0.5, neutral, 0, 640.04, 659.96))
}
