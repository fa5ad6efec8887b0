package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// 线上 action 字段取值
const (
	ActionJoinGame     = "join_game"
	ActionMove         = "move"
	ActionStop         = "stop"
	ActionPlayersMoved = "players_moved"
	ActionPlayerJoined = "player_joined"
	ActionPlayerLeft   = "player_left"
)

// ErrMalformed 入站负载无法解码或未通过校验
var ErrMalformed = errors.New("malformed message")

// Inbound 服务端消息的封闭联合类型
type Inbound interface {
	Action() string
	inbound()
}

// JoinResult 对 join_game 的应答；失败时只有 Error 有意义
type JoinResult struct {
	Success  bool
	PlayerID PlayerID
	Players  map[PlayerID]Entity
	Avatars  map[string]Avatar
	Error    string
	// Skipped 解码时忽略的条目说明
	Skipped []string
}

// PlayersMoved 增量合并；朝向无法识别的条目整条跳过
type PlayersMoved struct {
	Players map[PlayerID]PlayerPatch
	Skipped []string
}

// PlayerJoined 新玩家加入，可能附带新头像
type PlayerJoined struct {
	Player  Entity
	Avatar  *Avatar
	Skipped []string
}

// PlayerLeft 玩家离开
type PlayerLeft struct {
	PlayerID PlayerID
}

// UnknownMessage 未识别的 action，记录日志后忽略
type UnknownMessage struct {
	Name string
}

func (*JoinResult) Action() string       { return ActionJoinGame }
func (*PlayersMoved) Action() string     { return ActionPlayersMoved }
func (*PlayerJoined) Action() string     { return ActionPlayerJoined }
func (*PlayerLeft) Action() string       { return ActionPlayerLeft }
func (m *UnknownMessage) Action() string { return m.Name }

func (*JoinResult) inbound()     {}
func (*PlayersMoved) inbound()   {}
func (*PlayerJoined) inbound()   {}
func (*PlayerLeft) inbound()     {}
func (*UnknownMessage) inbound() {}

type wirePlayer struct {
	ID       *string  `json:"id"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Facing   *string  `json:"facing"`
	IsMoving *bool    `json:"isMoving"`
	Username *string  `json:"username"`
	Avatar   *string  `json:"avatar"`
}

// patch 朝向无法识别时返回错误，其余字段仍填好
func (w wirePlayer) patch() (PlayerPatch, error) {
	p := PlayerPatch{
		X:          w.X,
		Y:          w.Y,
		IsMoving:   w.IsMoving,
		Username:   w.Username,
		AvatarName: w.Avatar,
	}
	if w.Facing == nil {
		return p, nil
	}
	f, err := ParseFacing(*w.Facing)
	if err != nil {
		return p, err
	}
	p.Facing = &f
	return p, nil
}

// entity 完整记录；朝向无法识别时保持缺省 south
func (w wirePlayer) entity(id PlayerID) (Entity, error) {
	e := Entity{ID: id}
	p, err := w.patch()
	p.apply(&e)
	return e, err
}

type wireFrames map[string][]string

// frames 跳过 west 与无法识别的方向键，后者在 skipped 中说明
func (w wireFrames) frames() (out map[Facing][]string, skipped []string) {
	out = make(map[Facing][]string, len(w))
	for name, urls := range w {
		f, err := ParseFacing(name)
		if err != nil {
			skipped = append(skipped, err.Error())
			continue
		}
		if f == FacingWest {
			continue
		}
		out[f] = append([]string(nil), urls...)
	}
	return out, skipped
}

type wireAvatar struct {
	Name   string     `json:"name"`
	Frames wireFrames `json:"frames"`
}

type wireJoin struct {
	Success  bool                  `json:"success"`
	PlayerID string                `json:"playerId"`
	Players  map[string]wirePlayer `json:"players"`
	Avatars  map[string]wireFrames `json:"avatars"`
	Error    string                `json:"error"`
}

type wireMoved struct {
	Players map[string]wirePlayer `json:"players"`
}

type wireJoined struct {
	Player *wirePlayer `json:"player"`
	Avatar *wireAvatar `json:"avatar"`
}

type wireLeft struct {
	PlayerID string `json:"playerId"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// SkippedEntries 解码时被忽略的条目说明，供日志使用
func SkippedEntries(msg Inbound) []string {
	switch m := msg.(type) {
	case *JoinResult:
		return m.Skipped
	case *PlayersMoved:
		return m.Skipped
	case *PlayerJoined:
		return m.Skipped
	}
	return nil
}

// DecodeInbound 按 action 分派解码；未知 action 返回 UnknownMessage
func DecodeInbound(payload []byte) (Inbound, error) {
	var env struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, malformed("%v", err)
	}
	if env.Action == "" {
		return nil, malformed("missing action")
	}
	switch env.Action {
	case ActionJoinGame:
		return decodeJoin(payload)
	case ActionPlayersMoved:
		return decodeMoved(payload)
	case ActionPlayerJoined:
		return decodeJoined(payload)
	case ActionPlayerLeft:
		var w wireLeft
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed("player_left: %v", err)
		}
		if w.PlayerID == "" {
			return nil, malformed("player_left: missing playerId")
		}
		return &PlayerLeft{PlayerID: PlayerID(w.PlayerID)}, nil
	default:
		return &UnknownMessage{Name: env.Action}, nil
	}
}

func decodeJoin(payload []byte) (Inbound, error) {
	var w wireJoin
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, malformed("join_game: %v", err)
	}
	if !w.Success {
		return &JoinResult{Success: false, Error: w.Error}, nil
	}
	if w.PlayerID == "" {
		return nil, malformed("join_game: success without playerId")
	}
	res := &JoinResult{
		Success:  true,
		PlayerID: PlayerID(w.PlayerID),
		Players:  make(map[PlayerID]Entity, len(w.Players)),
		Avatars:  make(map[string]Avatar, len(w.Avatars)),
	}
	for key, p := range w.Players {
		if p.ID != nil && *p.ID != key {
			return nil, malformed("join_game: player key %q carries id %q", key, *p.ID)
		}
		e, err := p.entity(PlayerID(key))
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("player %q: %v", key, err))
		}
		res.Players[PlayerID(key)] = e
	}
	for name, wf := range w.Avatars {
		frames, skipped := wf.frames()
		for _, msg := range skipped {
			res.Skipped = append(res.Skipped, fmt.Sprintf("avatar %q: %s", name, msg))
		}
		res.Avatars[name] = Avatar{Name: name, Frames: frames}
	}
	sort.Strings(res.Skipped)
	return res, nil
}

func decodeMoved(payload []byte) (Inbound, error) {
	var w wireMoved
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, malformed("players_moved: %v", err)
	}
	if w.Players == nil {
		return nil, malformed("players_moved: missing players")
	}
	res := &PlayersMoved{Players: make(map[PlayerID]PlayerPatch, len(w.Players))}
	for key, p := range w.Players {
		patch, err := p.patch()
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("player %q: %v", key, err))
			continue
		}
		res.Players[PlayerID(key)] = patch
	}
	sort.Strings(res.Skipped)
	return res, nil
}

func decodeJoined(payload []byte) (Inbound, error) {
	var w wireJoined
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, malformed("player_joined: %v", err)
	}
	if w.Player == nil || w.Player.ID == nil || *w.Player.ID == "" {
		return nil, malformed("player_joined: missing player id")
	}
	id := *w.Player.ID
	e, err := w.Player.entity(PlayerID(id))
	res := &PlayerJoined{Player: e}
	if err != nil {
		res.Skipped = append(res.Skipped, fmt.Sprintf("player %q: %v", id, err))
	}
	if w.Avatar != nil {
		if w.Avatar.Name == "" {
			return nil, malformed("player_joined: avatar without name")
		}
		frames, skipped := w.Avatar.Frames.frames()
		for _, msg := range skipped {
			res.Skipped = append(res.Skipped, fmt.Sprintf("avatar %q: %s", w.Avatar.Name, msg))
		}
		res.Avatar = &Avatar{Name: w.Avatar.Name, Frames: frames}
	}
	sort.Strings(res.Skipped)
	return res, nil
}

// Outbound 客户端发往服务端的动作
type Outbound interface {
	Action() string
	outbound()
}

// JoinRequest 连接建立后立即发送
type JoinRequest struct {
	Username string
}

// MoveCommand 按键驱动的持续移动
type MoveCommand struct {
	Direction Direction
}

// MoveToCommand 点击移动，世界坐标取整
type MoveToCommand struct {
	X, Y int
}

// StopCommand 停止移动
type StopCommand struct{}

func (JoinRequest) Action() string   { return ActionJoinGame }
func (MoveCommand) Action() string   { return ActionMove }
func (MoveToCommand) Action() string { return ActionMove }
func (StopCommand) Action() string   { return ActionStop }

func (JoinRequest) outbound()   {}
func (MoveCommand) outbound()   {}
func (MoveToCommand) outbound() {}
func (StopCommand) outbound()   {}

// EncodeOutbound 编码为扁平 JSON 记录
func EncodeOutbound(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case JoinRequest:
		return json.Marshal(struct {
			Action   string `json:"action"`
			Username string `json:"username"`
		}{ActionJoinGame, m.Username})
	case MoveCommand:
		if m.Direction == DirNone {
			return nil, errors.New("move without direction")
		}
		return json.Marshal(struct {
			Action    string `json:"action"`
			Direction string `json:"direction"`
		}{ActionMove, m.Direction.String()})
	case MoveToCommand:
		return json.Marshal(struct {
			Action string `json:"action"`
			X      int    `json:"x"`
			Y      int    `json:"y"`
		}{ActionMove, m.X, m.Y})
	case StopCommand:
		return json.Marshal(struct {
			Action string `json:"action"`
		}{ActionStop})
	default:
		return nil, fmt.Errorf("unsupported outbound %T", msg)
	}
}
