package client

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultMoveRepeat 按住方向键时重复发送 move 的间隔
const DefaultMoveRepeat = 100 * time.Millisecond

// Key 四个方向键
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyLeft
	KeyRight
	keyCount
)

// keyPriority 同时按下多个键时只发送优先级最高的方向
var keyPriority = [...]Key{KeyUp, KeyDown, KeyLeft, KeyRight}

func (k Key) Direction() Direction {
	switch k {
	case KeyUp:
		return DirUp
	case KeyDown:
		return DirDown
	case KeyLeft:
		return DirLeft
	case KeyRight:
		return DirRight
	default:
		return DirNone
	}
}

func (k Key) String() string { return k.Direction().String() }

// ParseKey 支持 up/down/left/right、wasd 与 arrow* 写法
func ParseKey(s string) (Key, error) {
	switch strings.ToLower(s) {
	case "up", "w", "arrowup":
		return KeyUp, nil
	case "down", "s", "arrowdown":
		return KeyDown, nil
	case "left", "a", "arrowleft":
		return KeyLeft, nil
	case "right", "d", "arrowright":
		return KeyRight, nil
	}
	return 0, fmt.Errorf("unknown key %q", s)
}

// InputTranslator 将键盘状态与点击翻译为出站动作。
// 只在会话线程调用；重复定时器通过 post 回到会话线程
type InputTranslator struct {
	pressed  [keyCount]bool
	interval time.Duration
	sched    Scheduler
	post     func(func()) bool
	send     func(Outbound) bool

	running bool
	repeat  Timer
	loopGen uint64
}

func NewInputTranslator(interval time.Duration, sched Scheduler, post func(func()) bool, send func(Outbound) bool) *InputTranslator {
	if interval <= 0 {
		interval = DefaultMoveRepeat
	}
	return &InputTranslator{interval: interval, sched: sched, post: post, send: send}
}

// KeyDown 只有 released -> pressed 的首次跳变才会启动移动循环；
// 设备自动重复产生的按下事件被忽略
func (in *InputTranslator) KeyDown(k Key) {
	if k < 0 || k >= keyCount || in.pressed[k] {
		return
	}
	in.pressed[k] = true
	if in.running {
		return
	}
	in.running = true
	in.loopGen++
	in.emit()
	in.arm()
}

// KeyUp 全部方向键松开时发送一次 stop 并停止循环
func (in *InputTranslator) KeyUp(k Key) {
	if k < 0 || k >= keyCount || !in.pressed[k] {
		return
	}
	in.pressed[k] = false
	if in.anyPressed() {
		return
	}
	in.halt()
}

// ReleaseAll 失去焦点时视为全部松开
func (in *InputTranslator) ReleaseAll() {
	for i := range in.pressed {
		in.pressed[i] = false
	}
	in.halt()
}

// Click 画布坐标经缩放与相机偏移逆变换到世界坐标，裁剪后发送绝对目标。
// 与按键循环互不影响，由服务端裁决先后。非有限坐标直接丢弃
func (in *InputTranslator) Click(screen Vec2, cam Camera, world *WorldStore) (MoveToCommand, bool) {
	if !finite(screen.X) || !finite(screen.Y) {
		return MoveToCommand{}, false
	}
	p := world.Clamp(cam.ToWorld(screen))
	cmd := MoveToCommand{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
	in.send(cmd)
	return cmd, true
}

// Pressed 方向键当前是否按下
func (in *InputTranslator) Pressed(k Key) bool { return in.pressed[k] }

// Moving 是否有移动循环在运行
func (in *InputTranslator) Moving() bool { return in.running }

// Direction 按优先级计算当前应发送的方向
func (in *InputTranslator) Direction() Direction {
	for _, k := range keyPriority {
		if in.pressed[k] {
			return k.Direction()
		}
	}
	return DirNone
}

func (in *InputTranslator) anyPressed() bool {
	return in.Direction() != DirNone
}

func (in *InputTranslator) emit() {
	if dir := in.Direction(); dir != DirNone {
		in.send(MoveCommand{Direction: dir})
	}
}

func (in *InputTranslator) arm() {
	gen := in.loopGen
	in.repeat = in.sched.AfterFunc(in.interval, func() {
		in.post(func() { in.onRepeat(gen) })
	})
}

func (in *InputTranslator) onRepeat(gen uint64) {
	// 逻辑停止后才到达的回调直接丢弃
	if !in.running || gen != in.loopGen {
		return
	}
	in.repeat = nil
	in.emit()
	in.arm()
}

func (in *InputTranslator) halt() {
	if !in.running {
		return
	}
	if in.repeat != nil {
		in.repeat.Stop()
		in.repeat = nil
	}
	in.running = false
	in.loopGen++
	in.send(StopCommand{})
}
