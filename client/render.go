package client

import (
	"fmt"
	"image/color"
	"math"

	"github.com/dustin/go-humanize"
)

// Rect 轴对齐矩形
type Rect struct {
	X, Y, W, H float64
}

// Align 文本水平对齐
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
)

// TextStyle 文本样式
type TextStyle struct {
	Color color.RGBA
	Size  float64
	Align Align
}

// Renderer 外部绘制能力；核心只调用，不实现光栅化
type Renderer interface {
	// Size 画布像素尺寸
	Size() (w, h float64)
	Clear()
	DrawSprite(img Image, src, dst Rect, mirror bool)
	DrawText(text string, x, y float64, style TextStyle)
	FillCircle(cx, cy, radius float64, c color.RGBA)
	FillRect(r Rect, c color.RGBA)
	StrokeRect(r Rect, c color.RGBA)
}

var (
	colorLocal      = color.RGBA{R: 0x4a, G: 0x90, B: 0xe2, A: 0xff}
	colorPeer       = color.RGBA{R: 0xe2, G: 0x4a, B: 0x4a, A: 0xff}
	colorBackground = color.RGBA{R: 0x2d, G: 0x5a, B: 0x27, A: 0xff}
	colorPanel      = color.RGBA{A: 0xb0}
	colorText       = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colorViewport   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xc0}
)

const (
	DefaultAvatarSize = 64
	DefaultCullMargin = 100
	minimapSize       = 150
	overlayPadding    = 10
	labelFontSize     = 12
)

// RenderOptions 绘制参数
type RenderOptions struct {
	AvatarSize float64
	CullMargin float64
	MapURL     string
}

// RenderCoordinator 每帧编排：推进插值与相机，然后依次绘制背景、实体、名字与固定浮层
type RenderCoordinator struct {
	opts     RenderOptions
	world    *WorldStore
	motion   *Interpolator
	anim     *Animator
	camera   *CameraController
	assets   *AssetCache
	conn     *ConnectionManager
	renderer Renderer
}

type visibleEntity struct {
	entity *Entity
	screen Vec2
	top    float64
}

func NewRenderCoordinator(opts RenderOptions, world *WorldStore, motion *Interpolator, anim *Animator,
	camera *CameraController, assets *AssetCache, conn *ConnectionManager, renderer Renderer) *RenderCoordinator {
	if opts.AvatarSize <= 0 {
		opts.AvatarSize = DefaultAvatarSize
	}
	if opts.CullMargin <= 0 {
		opts.CullMargin = DefaultCullMargin
	}
	return &RenderCoordinator{
		opts:     opts,
		world:    world,
		motion:   motion,
		anim:     anim,
		camera:   camera,
		assets:   assets,
		conn:     conn,
		renderer: renderer,
	}
}

// Frame 绘制一帧；nowMs 为单调递增的时间戳
func (rc *RenderCoordinator) Frame(nowMs float64) {
	rc.motion.Advance(rc.world)
	rc.anim.Observe(rc.world, nowMs)

	viewW, viewH := rc.renderer.Size()
	if local, ok := rc.world.Local(); ok {
		if pos, ok := rc.motion.Position(local.ID); ok {
			rc.camera.Follow(pos, viewW, viewH)
		}
	}
	cam := rc.camera.Camera()

	rc.renderer.Clear()
	rc.drawBackground(cam, viewW, viewH)
	visible := rc.drawEntities(cam, viewW, viewH, nowMs)
	rc.drawLabels(cam, visible)
	rc.drawStatus()
	rc.drawMinimap(cam, viewW, viewH)
}

func (rc *RenderCoordinator) drawBackground(cam Camera, viewW, viewH float64) {
	img, ok := rc.assets.Image(rc.opts.MapURL)
	if !ok {
		rc.renderer.FillRect(Rect{W: viewW, H: viewH}, colorBackground)
		return
	}
	visW, visH := cam.VisibleSize(viewW, viewH)
	iw, ih := img.Size()
	// 裁剪到图片范围，视口超出世界时只画有效部分
	src := Rect{X: cam.X, Y: cam.Y, W: math.Min(visW, float64(iw)-cam.X), H: math.Min(visH, float64(ih)-cam.Y)}
	if src.W <= 0 || src.H <= 0 {
		return
	}
	rc.renderer.DrawSprite(img, src, Rect{W: src.W * cam.Zoom, H: src.H * cam.Zoom}, false)
}

func (rc *RenderCoordinator) drawEntities(cam Camera, viewW, viewH, nowMs float64) []visibleEntity {
	visW, visH := cam.VisibleSize(viewW, viewH)
	margin := rc.opts.CullMargin
	size := rc.opts.AvatarSize * cam.Zoom
	localID := rc.world.LocalID()

	var visible []visibleEntity
	for _, e := range rc.world.Entities() {
		pos, ok := rc.motion.Position(e.ID)
		if !ok {
			pos = e.Pos()
		}
		if pos.X < cam.X-margin || pos.X > cam.X+visW+margin ||
			pos.Y < cam.Y-margin || pos.Y > cam.Y+visH+margin {
			continue
		}
		screen := cam.ToScreen(pos)
		top := screen.Y - size/2

		img, mirror, st := rc.sprite(e, nowMs)
		switch st {
		case frameMissing:
			continue
		case frameReady:
			iw, ih := img.Size()
			h := size
			if iw > 0 {
				h = size * float64(ih) / float64(iw)
			}
			top = screen.Y - h/2
			rc.renderer.DrawSprite(img,
				Rect{W: float64(iw), H: float64(ih)},
				Rect{X: screen.X - size/2, Y: top, W: size, H: h},
				mirror)
		default:
			c := colorPeer
			if e.ID == localID {
				c = colorLocal
			}
			rc.renderer.FillCircle(screen.X, screen.Y, size/4, c)
		}
		visible = append(visible, visibleEntity{entity: e, screen: screen, top: top})
	}
	return visible
}

type frameStatus int

const (
	frameReady frameStatus = iota
	// frameUnresolved 头像未知或图片未就绪/加载失败：画占位圆
	frameUnresolved
	// frameMissing 头像已知但没有该方向/序号的帧：本帧跳过该实体
	frameMissing
)

// sprite 解析实体本帧的图片
func (rc *RenderCoordinator) sprite(e *Entity, nowMs float64) (Image, bool, frameStatus) {
	avatar, ok := rc.world.Avatar(e.AvatarName)
	if !ok {
		return nil, false, frameUnresolved
	}
	ref := rc.anim.Frame(e, nowMs)
	url, ok := avatar.FrameURL(ref.Direction, ref.Index)
	if !ok {
		return nil, false, frameMissing
	}
	img, ok := rc.assets.Image(url)
	if !ok {
		return nil, false, frameUnresolved
	}
	return img, ref.Mirror, frameReady
}

func (rc *RenderCoordinator) drawLabels(cam Camera, visible []visibleEntity) {
	style := TextStyle{Color: colorText, Size: labelFontSize * cam.Zoom, Align: AlignCenter}
	for _, v := range visible {
		if v.entity.Username == "" {
			continue
		}
		rc.renderer.DrawText(v.entity.Username, v.screen.X, v.top-4*cam.Zoom, style)
	}
}

// drawStatus 左上角状态面板，不受相机与缩放影响
func (rc *RenderCoordinator) drawStatus() {
	lines := []string{"Status: " + rc.statusText()}
	if local, ok := rc.world.Local(); ok {
		lines = append(lines, fmt.Sprintf("Player: %s", local.Username))
		pos := local.Pos()
		if p, ok := rc.motion.Position(local.ID); ok {
			pos = p
		}
		lines = append(lines, fmt.Sprintf("Position: %.0f, %.0f", pos.X, pos.Y))
	}
	lines = append(lines,
		fmt.Sprintf("Players: %d", rc.world.Len()),
		fmt.Sprintf("Zoom: %.1fx", rc.camera.Camera().Zoom),
		"Received: "+humanize.Bytes(rc.conn.BytesReceived()),
	)

	lineH := float64(labelFontSize + 4)
	rc.renderer.FillRect(Rect{X: overlayPadding, Y: overlayPadding, W: 200, H: lineH*float64(len(lines)) + 8}, colorPanel)
	style := TextStyle{Color: colorText, Size: labelFontSize, Align: AlignLeft}
	for i, line := range lines {
		rc.renderer.DrawText(line, overlayPadding+6, overlayPadding+4+lineH*float64(i+1)-4, style)
	}
}

func (rc *RenderCoordinator) statusText() string {
	switch rc.conn.State() {
	case StateConnected:
		if rc.world.LocalID() == "" {
			return "joining"
		}
		return "connected"
	case StateConnecting:
		return "connecting"
	default:
		return "disconnected, reconnecting"
	}
}

// drawMinimap 右上角小地图：每个实体一个点，并框出当前视口
func (rc *RenderCoordinator) drawMinimap(cam Camera, viewW, viewH float64) {
	if rc.world.Width <= 0 || rc.world.Height <= 0 {
		return
	}
	scale := minimapSize / math.Max(rc.world.Width, rc.world.Height)
	origin := Vec2{X: viewW - minimapSize - overlayPadding, Y: overlayPadding}
	rc.renderer.FillRect(Rect{X: origin.X, Y: origin.Y, W: rc.world.Width * scale, H: rc.world.Height * scale}, colorPanel)

	localID := rc.world.LocalID()
	for _, e := range rc.world.Entities() {
		pos, ok := rc.motion.Position(e.ID)
		if !ok {
			pos = e.Pos()
		}
		c, r := colorPeer, 2.0
		if e.ID == localID {
			c, r = colorLocal, 3.0
		}
		rc.renderer.FillCircle(origin.X+pos.X*scale, origin.Y+pos.Y*scale, r, c)
	}
	visW, visH := cam.VisibleSize(viewW, viewH)
	rc.renderer.StrokeRect(Rect{
		X: origin.X + cam.X*scale,
		Y: origin.Y + cam.Y*scale,
		W: math.Min(visW, rc.world.Width) * scale,
		H: math.Min(visH, rc.world.Height) * scale,
	}, colorViewport)
}
