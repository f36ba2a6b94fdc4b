package ingest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Akash9179/Project-Argus/internal/jpegenc"
)

// syntheticDriver renders a moving test pattern in-process. It needs no
// decoder or hardware, which makes it the source of choice for tests, load
// drills, and wiring demos.
type syntheticDriver struct {
	cfg     Config
	counter atomic.Uint64
}

// NewSynthetic builds an adapter producing generated frames.
func NewSynthetic(cfg Config, logger *zap.Logger) *Adapter {
	cfg.applyDefaults()
	return newAdapter(cfg, &syntheticDriver{cfg: cfg}, logger)
}

func (d *syntheticDriver) Protocol() string { return "synthetic" }

func (d *syntheticDriver) Connect(ctx context.Context) error { return nil }

func (d *syntheticDriver) Disconnect() error { return nil }

func (d *syntheticDriver) ReadFrame(ctx context.Context) (*RawFrame, error) {
	n := d.counter.Add(1)
	w, h := d.cfg.Width, d.cfg.Height

	img := image.NewRGBA(image.Rect(0, 0, w, h))

	// Dark background with a sweeping vertical bar so motion is visible.
	barX := int(n*4) % w
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			o := row + x*4
			img.Pix[o+0] = 0x20
			img.Pix[o+1] = 0x20
			img.Pix[o+2] = 0x28
			img.Pix[o+3] = 0xFF
			if x == barX {
				img.Pix[o+0] = 0x00
				img.Pix[o+1] = 0xC8
				img.Pix[o+2] = 0x50
			}
		}
	}

	label := fmt.Sprintf("%s #%d", d.cfg.Name, n)
	fd := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(8), Y: fixed.I(18)},
	}
	fd.DrawString(label)

	bgr, bw, bh := jpegenc.ImageToBGR(img)
	return &RawFrame{Image: bgr, Width: bw, Height: bh, Channels: 3, Codec: "rawvideo"}, nil
}
