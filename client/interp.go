package client

// DefaultLerpFactor 每帧向目标逼近的比例（按帧而非按时间，帧率不同手感不同）
const DefaultLerpFactor = 0.15

type interpState struct {
	current Vec2
	target  Vec2
}

// Interpolator 为每个实体维护平滑位置；current 只由这里推进
type Interpolator struct {
	factor float64
	states map[PlayerID]*interpState
}

func NewInterpolator(factor float64) *Interpolator {
	if factor <= 0 || factor > 1 {
		factor = DefaultLerpFactor
	}
	return &Interpolator{factor: factor, states: make(map[PlayerID]*interpState)}
}

// Advance 推进一帧。新实体直接落在权威位置；目标变化才覆盖 target；
// 镜像中已不存在的实体同时丢弃其插值记录
func (ip *Interpolator) Advance(world *WorldStore) {
	ip.Prune(world)
	for _, e := range world.Entities() {
		pos := e.Pos()
		st, ok := ip.states[e.ID]
		if !ok {
			ip.states[e.ID] = &interpState{current: pos, target: pos}
			continue
		}
		if st.target != pos {
			st.target = pos
		}
		st.current.X += (st.target.X - st.current.X) * ip.factor
		st.current.Y += (st.target.Y - st.current.Y) * ip.factor
	}
}

// Position 本帧的平滑位置
func (ip *Interpolator) Position(id PlayerID) (Vec2, bool) {
	st, ok := ip.states[id]
	if !ok {
		return Vec2{}, false
	}
	return st.current, true
}

// target 最近一次记录的权威位置
func (ip *Interpolator) target(id PlayerID) (Vec2, bool) {
	st, ok := ip.states[id]
	if !ok {
		return Vec2{}, false
	}
	return st.target, true
}

// Prune 丢弃镜像中已不存在的实体的记录
func (ip *Interpolator) Prune(world *WorldStore) {
	for id := range ip.states {
		if !world.Has(id) {
			delete(ip.states, id)
		}
	}
}

// Forget 实体离开时立即删除插值记录
func (ip *Interpolator) Forget(id PlayerID) { delete(ip.states, id) }

func (ip *Interpolator) Len() int { return len(ip.states) }
