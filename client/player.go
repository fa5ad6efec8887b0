package client

import (
	"fmt"
	"strings"
)

// PlayerID 服务端分配的玩家标识，会话期内稳定
type PlayerID string

// Direction 移动方向（发送给服务端的意图）
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return ""
	}
}

// Facing 实体朝向，零值为 south
type Facing int

const (
	FacingSouth Facing = iota
	FacingNorth
	FacingEast
	FacingWest
)

func (f Facing) String() string {
	switch f {
	case FacingNorth:
		return "north"
	case FacingEast:
		return "east"
	case FacingWest:
		return "west"
	default:
		return "south"
	}
}

// ParseFacing 解析线上的朝向字符串
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(s) {
	case "south":
		return FacingSouth, nil
	case "north":
		return FacingNorth, nil
	case "east":
		return FacingEast, nil
	case "west":
		return FacingWest, nil
	}
	return FacingSouth, fmt.Errorf("unknown facing %q", s)
}

func (f Facing) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Facing) UnmarshalText(b []byte) error {
	v, err := ParseFacing(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Vec2 世界坐标（原点在左上角）
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity 本地镜像中的一个联网角色（包括本地玩家）
type Entity struct {
	ID         PlayerID
	X          float64
	Y          float64
	Facing     Facing
	IsMoving   bool
	Username   string
	AvatarName string
}

func (e *Entity) Pos() Vec2 { return Vec2{X: e.X, Y: e.Y} }

// PlayerPatch 增量更新：nil 字段表示未提供，合并时保留旧值
type PlayerPatch struct {
	X          *float64
	Y          *float64
	Facing     *Facing
	IsMoving   *bool
	Username   *string
	AvatarName *string
}

// apply 仅合并提供的字段
func (p PlayerPatch) apply(e *Entity) {
	if p.X != nil {
		e.X = *p.X
	}
	if p.Y != nil {
		e.Y = *p.Y
	}
	if p.Facing != nil {
		e.Facing = *p.Facing
	}
	if p.IsMoving != nil {
		e.IsMoving = *p.IsMoving
	}
	if p.Username != nil {
		e.Username = *p.Username
	}
	if p.AvatarName != nil {
		e.AvatarName = *p.AvatarName
	}
}

// Avatar 头像精灵集：方向 -> 有序帧地址。west 不单独存储，绘制时由 east 镜像得到
type Avatar struct {
	Name   string
	Frames map[Facing][]string
}

// FrameURL 返回某方向第 idx 帧的地址
func (a Avatar) FrameURL(f Facing, idx int) (string, bool) {
	frames := a.Frames[f]
	if idx < 0 || idx >= len(frames) {
		return "", false
	}
	return frames[idx], true
}

// URLs 列出该头像引用的全部图片地址
func (a Avatar) URLs() []string {
	var out []string
	for _, f := range []Facing{FacingNorth, FacingSouth, FacingEast} {
		out = append(out, a.Frames[f]...)
	}
	return out
}
