package client

import "math"

const (
	// FrameCount 行走动画帧数
	FrameCount = 3
	// FrameDurationMs 每帧持续时间
	FrameDurationMs = 200
)

// FrameRef 选中的精灵帧：方向、序号，以及是否水平镜像
type FrameRef struct {
	Direction Facing
	Index     int
	Mirror    bool
}

// SelectFrame 纯函数：静止取第 0 帧，移动时按 200ms 一帧循环 3 帧；
// west 映射为镜像的 east
func SelectFrame(facing Facing, moving bool, elapsedMs float64) FrameRef {
	ref := FrameRef{Direction: facing}
	if facing == FacingWest {
		ref.Direction = FacingEast
		ref.Mirror = true
	}
	if !moving || elapsedMs < 0 {
		return ref
	}
	ref.Index = int(math.Floor(elapsedMs/FrameDurationMs)) % FrameCount
	return ref
}

// Animator 记录每个实体开始移动的时间戳
type Animator struct {
	started map[PlayerID]float64
}

func NewAnimator() *Animator {
	return &Animator{started: make(map[PlayerID]float64)}
}

// Observe 每帧同步移动状态：开始移动时记下起点，停下或离开时清除
func (a *Animator) Observe(world *WorldStore, nowMs float64) {
	for id := range a.started {
		e, ok := world.Get(id)
		if !ok || !e.IsMoving {
			delete(a.started, id)
		}
	}
	for _, e := range world.Entities() {
		if !e.IsMoving {
			continue
		}
		if _, ok := a.started[e.ID]; !ok {
			a.started[e.ID] = nowMs
		}
	}
}

// Frame 计算实体本帧应绘制的帧
func (a *Animator) Frame(e *Entity, nowMs float64) FrameRef {
	var elapsed float64
	if start, ok := a.started[e.ID]; ok {
		elapsed = nowMs - start
	}
	return SelectFrame(e.Facing, e.IsMoving, elapsed)
}

// Prune 丢弃已离开实体的记录
func (a *Animator) Prune(world *WorldStore) {
	for id := range a.started {
		if !world.Has(id) {
			delete(a.started, id)
		}
	}
}

func (a *Animator) Forget(id PlayerID) { delete(a.started, id) }

// Tracking 是否仍持有该实体的动画记录
func (a *Animator) Tracking(id PlayerID) bool {
	_, ok := a.started[id]
	return ok
}
