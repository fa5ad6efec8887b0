package client

import "sort"

// WorldStore 本地世界镜像：由服务端消息合并而来，只在会话线程中读写
type WorldStore struct {
	Width  float64
	Height float64

	entities map[PlayerID]*Entity
	avatars  map[string]Avatar
	localID  PlayerID
}

// NewWorldStore 创建空的世界镜像
func NewWorldStore(width, height float64) *WorldStore {
	return &WorldStore{
		Width:    width,
		Height:   height,
		entities: make(map[PlayerID]*Entity),
		avatars:  make(map[string]Avatar),
	}
}

// ApplySnapshot 加入成功时整体替换实体集合与头像目录
func (w *WorldStore) ApplySnapshot(localID PlayerID, players map[PlayerID]Entity, avatars map[string]Avatar) {
	w.entities = make(map[PlayerID]*Entity, len(players))
	for id, p := range players {
		e := p
		e.ID = id
		w.entities[id] = &e
	}
	w.avatars = make(map[string]Avatar, len(avatars))
	for name, a := range avatars {
		w.avatars[name] = a
	}
	w.localID = localID
}

// ApplyMoves 增量合并：只覆盖提供的字段，不认识的 id 直接忽略。返回实际更新的 id
func (w *WorldStore) ApplyMoves(patches map[PlayerID]PlayerPatch) []PlayerID {
	updated := make([]PlayerID, 0, len(patches))
	for id, patch := range patches {
		e, ok := w.entities[id]
		if !ok {
			continue
		}
		patch.apply(e)
		updated = append(updated, id)
	}
	return updated
}

// Upsert 插入或整体覆盖一个实体，并可选登记新头像
func (w *WorldStore) Upsert(p Entity, avatar *Avatar) {
	e := p
	w.entities[e.ID] = &e
	if avatar != nil {
		w.avatars[avatar.Name] = *avatar
	}
}

// Remove 删除实体；返回是否存在
func (w *WorldStore) Remove(id PlayerID) bool {
	if _, ok := w.entities[id]; !ok {
		return false
	}
	delete(w.entities, id)
	return true
}

// ClearLocal 断线时清除本地玩家身份，避免跨会话复用旧 id
func (w *WorldStore) ClearLocal() { w.localID = "" }

// LocalID 当前本地玩家 id（未加入时为空）
func (w *WorldStore) LocalID() PlayerID { return w.localID }

// Local 每次调用都按当前 id 重新查找，因此任何变更后都立即生效
func (w *WorldStore) Local() (*Entity, bool) {
	if w.localID == "" {
		return nil, false
	}
	e, ok := w.entities[w.localID]
	return e, ok
}

// Get 按 id 查找实体
func (w *WorldStore) Get(id PlayerID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// Has 判断实体是否存在
func (w *WorldStore) Has(id PlayerID) bool {
	_, ok := w.entities[id]
	return ok
}

// Len 实体数量
func (w *WorldStore) Len() int { return len(w.entities) }

// Avatar 按名称查找头像
func (w *WorldStore) Avatar(name string) (Avatar, bool) {
	a, ok := w.avatars[name]
	return a, ok
}

// Avatars 当前目录中的全部头像
func (w *WorldStore) Avatars() []Avatar {
	out := make([]Avatar, 0, len(w.avatars))
	for _, a := range w.avatars {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Entities 按 y 升序（同 y 按 id）排列，保证绘制层次与帧间顺序稳定
func (w *WorldStore) Entities() []*Entity {
	out := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clamp 将坐标裁剪到世界边界内
func (w *WorldStore) Clamp(p Vec2) Vec2 {
	return Vec2{X: clamp(p.X, 0, w.Width), Y: clamp(p.Y, 0, w.Height)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
