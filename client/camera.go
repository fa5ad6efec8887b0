package client

import "math"

const (
	// DefaultCameraEasing 相机每帧缓动比例，与实体插值比例相互独立
	DefaultCameraEasing = 0.1

	MinZoom  = 0.5
	MaxZoom  = 3.0
	ZoomStep = 0.1
)

// Camera 视口左上角的世界坐标与缩放
type Camera struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// VisibleSize 缩放后视口覆盖的世界尺寸
func (c Camera) VisibleSize(viewW, viewH float64) (float64, float64) {
	return viewW / c.Zoom, viewH / c.Zoom
}

// ToScreen 世界坐标 -> 画布坐标
func (c Camera) ToScreen(p Vec2) Vec2 {
	return Vec2{X: (p.X - c.X) * c.Zoom, Y: (p.Y - c.Y) * c.Zoom}
}

// ToWorld 画布坐标 -> 世界坐标（ToScreen 的逆变换）
func (c Camera) ToWorld(p Vec2) Vec2 {
	return Vec2{X: p.X/c.Zoom + c.X, Y: p.Y/c.Zoom + c.Y}
}

// CameraController 每帧一次：以本地玩家为中心缓动，再按世界边界裁剪
type CameraController struct {
	cam    Camera
	easing float64
	worldW float64
	worldH float64
}

func NewCameraController(worldW, worldH, zoom, easing float64) *CameraController {
	if easing <= 0 || easing > 1 {
		easing = DefaultCameraEasing
	}
	return &CameraController{
		cam:    Camera{Zoom: clampZoom(zoom)},
		easing: easing,
		worldW: worldW,
		worldH: worldH,
	}
}

// Camera 当前相机（只读副本）
func (cc *CameraController) Camera() Camera { return cc.cam }

// Follow 缓动到让 focus 居中的位置；永不瞬移
func (cc *CameraController) Follow(focus Vec2, viewW, viewH float64) {
	visW, visH := cc.cam.VisibleSize(viewW, viewH)
	targetX := focus.X - visW/2
	targetY := focus.Y - visH/2
	cc.cam.X += (targetX - cc.cam.X) * cc.easing
	cc.cam.Y += (targetY - cc.cam.Y) * cc.easing
	// 视口大于世界时有效区间退化为 0
	cc.cam.X = clamp(cc.cam.X, 0, max(0, cc.worldW-visW))
	cc.cam.Y = clamp(cc.cam.Y, 0, max(0, cc.worldH-visH))
}

// SetZoom 设置缩放，裁剪到 [MinZoom, MaxZoom]
func (cc *CameraController) SetZoom(z float64) float64 {
	cc.cam.Zoom = clampZoom(z)
	return cc.cam.Zoom
}

// ZoomBy 按步进调整缩放
func (cc *CameraController) ZoomBy(steps int) float64 {
	return cc.SetZoom(cc.cam.Zoom + float64(steps)*ZoomStep)
}

// clampZoom 0 与非有限值视为 1
func clampZoom(z float64) float64 {
	if z == 0 || !finite(z) {
		return 1
	}
	return clamp(z, MinZoom, MaxZoom)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
