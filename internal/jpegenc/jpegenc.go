// Package jpegenc converts between the raw BGR frame buffers produced by the
// ingest adapters and JPEG bytes served to MJPEG viewers.
package jpegenc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Akash9179/Project-Argus/internal/model"
)

// DefaultQuality matches the distributor's encode setting.
const DefaultQuality = 80

var bufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 128*1024))
	},
}

// Encode compresses a frame's BGR pixel buffer into JPEG bytes. The returned
// slice is owned by the caller.
func Encode(f *model.Frame, quality int) ([]byte, error) {
	if f == nil || len(f.Image) == 0 {
		return nil, fmt.Errorf("jpegenc: empty frame")
	}
	if f.Channels != 3 {
		return nil, fmt.Errorf("jpegenc: unsupported channel count %d", f.Channels)
	}
	if len(f.Image) != f.Width*f.Height*3 {
		return nil, fmt.Errorf("jpegenc: buffer size %d does not match %dx%dx3",
			len(f.Image), f.Width, f.Height)
	}

	img := BGRToImage(f.Image, f.Width, f.Height)

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpegenc: encode: %w", err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// BGRToImage wraps a BGR24 buffer in an image.RGBA, swapping channels.
func BGRToImage(data []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := y * w * 3
		dst := y * img.Stride
		for x := 0; x < w; x++ {
			img.Pix[dst+0] = data[src+2] // R
			img.Pix[dst+1] = data[src+1] // G
			img.Pix[dst+2] = data[src+0] // B
			img.Pix[dst+3] = 0xFF
			src += 3
			dst += 4
		}
	}
	return img
}

// ImageToBGR flattens a decoded image into a BGR24 buffer.
func ImageToBGR(img image.Image) ([]byte, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*3)

	// Fast path for the RGBA layout produced by most decoders.
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			src := y * rgba.Stride
			dst := y * w * 3
			for x := 0; x < w; x++ {
				out[dst+0] = rgba.Pix[src+2]
				out[dst+1] = rgba.Pix[src+1]
				out[dst+2] = rgba.Pix[src+0]
				src += 4
				dst += 3
			}
		}
		return out, w, h
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out[i+0] = byte(bl >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(r >> 8)
			i += 3
		}
	}
	return out, w, h
}
