package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"miniarena-client/client"
)

// canvasRenderer 软件光栅化的无窗口渲染器：每帧画到离屏缓冲，完成的帧可导出为 PNG
type canvasRenderer struct {
	w, h int

	canvas *image.RGBA

	mu        sync.Mutex
	published *image.RGBA

	frames    atomic.Uint64
	drawCalls atomic.Uint64
	calls     uint64
}

func newCanvasRenderer(w, h int) *canvasRenderer {
	rect := image.Rect(0, 0, w, h)
	return &canvasRenderer{w: w, h: h, canvas: image.NewRGBA(rect), published: image.NewRGBA(rect)}
}

func (r *canvasRenderer) Size() (float64, float64) { return float64(r.w), float64(r.h) }

// Clear 发布上一帧并开始新帧
func (r *canvasRenderer) Clear() {
	r.mu.Lock()
	if r.calls > 0 {
		r.canvas, r.published = r.published, r.canvas
		r.frames.Add(1)
		r.drawCalls.Store(r.calls)
	}
	r.mu.Unlock()
	r.calls = 0
	draw.Draw(r.canvas, r.canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

func (r *canvasRenderer) DrawSprite(img client.Image, src, dst client.Rect, mirror bool) {
	r.calls++
	decoded, ok := img.(*client.DecodedImage)
	if !ok || src.W <= 0 || src.H <= 0 {
		return
	}
	sx, sy := dst.W/src.W, dst.H/src.H
	m := f64.Aff3{sx, 0, dst.X - src.X*sx, 0, sy, dst.Y - src.Y*sy}
	if mirror {
		m[0], m[2] = -sx, dst.X+dst.W+src.X*sx
	}
	sr := image.Rect(int(src.X), int(src.Y), int(src.X+src.W), int(src.Y+src.H))
	draw.ApproxBiLinear.Transform(r.canvas, m, decoded.Img, sr, draw.Over, nil)
}

func (r *canvasRenderer) DrawText(text string, x, y float64, style client.TextStyle) {
	r.calls++
	d := &font.Drawer{Dst: r.canvas, Src: image.NewUniform(style.Color), Face: basicfont.Face7x13}
	if style.Align == client.AlignCenter {
		x -= float64(d.MeasureString(text).Round()) / 2
	}
	d.Dot = fixed.P(int(x), int(y))
	d.DrawString(text)
}

func (r *canvasRenderer) FillCircle(cx, cy, radius float64, c color.RGBA) {
	r.calls++
	box := image.Rect(int(cx-radius), int(cy-radius), int(cx+radius)+1, int(cy+radius)+1)
	draw.DrawMask(r.canvas, box, image.NewUniform(c), image.Point{}, &circleMask{cx: cx, cy: cy, r: radius}, box.Min, draw.Over)
}

func (r *canvasRenderer) FillRect(rect client.Rect, c color.RGBA) {
	r.calls++
	draw.Draw(r.canvas, toImageRect(rect), image.NewUniform(c), image.Point{}, draw.Over)
}

func (r *canvasRenderer) StrokeRect(rect client.Rect, c color.RGBA) {
	r.calls++
	u := image.NewUniform(c)
	b := toImageRect(rect)
	for _, edge := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+1),
		image.Rect(b.Min.X, b.Max.Y-1, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Min.X+1, b.Max.Y),
		image.Rect(b.Max.X-1, b.Min.Y, b.Max.X, b.Max.Y),
	} {
		draw.Draw(r.canvas, edge, u, image.Point{}, draw.Over)
	}
}

// Stats 已完成帧数与最近一帧的绘制调用数
func (r *canvasRenderer) Stats() (frames, drawCalls uint64) {
	return r.frames.Load(), r.drawCalls.Load()
}

// WritePNG 导出最近完成的一帧
func (r *canvasRenderer) WritePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	r.mu.Lock()
	err = png.Encode(f, r.published)
	r.mu.Unlock()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	return nil
}

func toImageRect(r client.Rect) image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.W), int(r.Y+r.H))
}

// circleMask 圆形蒙版
type circleMask struct {
	cx, cy, r float64
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m *circleMask) Bounds() image.Rectangle {
	return image.Rect(int(m.cx-m.r), int(m.cy-m.r), int(m.cx+m.r)+1, int(m.cy+m.r)+1)
}

func (m *circleMask) At(x, y int) color.Color {
	dx, dy := float64(x)+0.5-m.cx, float64(y)+0.5-m.cy
	if dx*dx+dy*dy <= m.r*m.r {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}
