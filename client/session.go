package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrJoinRejected 服务端拒绝加入；不自动重试，下一次重连会重新握手
var ErrJoinRejected = errors.New("join rejected")

// Deps 会话的外部协作者
type Deps struct {
	Dialer    Dialer
	Renderer  Renderer
	Loader    AssetLoader
	Scheduler Scheduler
	Log       *zap.SugaredLogger
	Metrics   *Metrics
}

// Session 显式的会话上下文：持有全部组件，所有状态变更都在 Run 所在的单一协程中执行。
// 网络、定时器、输入与帧驱动都只通过事件通道投递闭包
type Session struct {
	cfg     Config
	log     *zap.SugaredLogger
	metrics *Metrics

	events   chan func()
	done     chan struct{}
	doneOnce sync.Once

	world  *WorldStore
	motion *Interpolator
	anim   *Animator
	camera *CameraController
	input  *InputTranslator
	conn   *ConnectionManager
	assets *AssetCache
	render *RenderCoordinator

	lastErr error
}

// Status 会话状态快照（调试接口与控制台使用）
type Status struct {
	State            string   `json:"state"`
	ConnID           string   `json:"connId,omitempty"`
	PlayerID         PlayerID `json:"playerId,omitempty"`
	Entities         int      `json:"entities"`
	Position         *Vec2    `json:"position,omitempty"`
	Camera           Camera   `json:"camera"`
	Moving           bool     `json:"moving"`
	ReconnectPending bool     `json:"reconnectPending"`
	PendingAssets    int      `json:"pendingAssets"`
	BytesReceived    uint64   `json:"bytesReceived"`
	LastError        string   `json:"lastError,omitempty"`
}

func NewSession(cfg Config, deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = SystemScheduler{}
	}
	s := &Session{
		cfg:     cfg,
		log:     deps.Log,
		metrics: deps.Metrics,
		events:  make(chan func(), 1024),
		done:    make(chan struct{}),
	}
	s.world = NewWorldStore(cfg.World.Width, cfg.World.Height)
	s.motion = NewInterpolator(DefaultLerpFactor)
	s.anim = NewAnimator()
	s.camera = NewCameraController(cfg.World.Width, cfg.World.Height, cfg.View.Zoom, DefaultCameraEasing)
	s.assets = NewAssetCache(deps.Loader, s.post, deps.Log)
	s.conn = NewConnectionManager(ConnOptions{
		Endpoint:       cfg.Server.URL,
		Username:       cfg.Server.Username,
		ReconnectDelay: cfg.Server.ReconnectDelay(),
		Dialer:         deps.Dialer,
		Scheduler:      deps.Scheduler,
		Post:           s.post,
		Handler:        sessionHandler{s},
		Log:            deps.Log,
		Metrics:        deps.Metrics,
	})
	s.input = NewInputTranslator(cfg.Input.MoveRepeat(), deps.Scheduler, s.post, s.conn.Send)
	s.render = NewRenderCoordinator(RenderOptions{
		AvatarSize: cfg.View.AvatarSize,
		CullMargin: cfg.View.CullMargin,
		MapURL:     cfg.World.MapURL,
	}, s.world, s.motion, s.anim, s.camera, s.assets, s.conn, deps.Renderer)
	return s
}

// Run 事件循环；ctx 取消后发送 stop、关闭连接并返回。只能调用一次
func (s *Session) Run(ctx context.Context) error {
	defer s.doneOnce.Do(func() { close(s.done) })

	s.conn.Start(ctx)
	s.assets.Request(s.cfg.World.MapURL)
	for {
		select {
		case <-ctx.Done():
			s.input.ReleaseAll()
			s.conn.Close()
			s.log.Info("session stopped")
			return ctx.Err()
		case fn := <-s.events:
			fn()
		}
	}
}

// post 阻塞投递，直到被接收或会话停止
func (s *Session) post(fn func()) bool {
	if s.stopped() {
		return false
	}
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) postCtx(ctx context.Context, fn func()) error {
	if s.stopped() {
		return context.Canceled
	}
	select {
	case s.events <- fn:
		return nil
	case <-s.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// KeyDown 方向键按下
func (s *Session) KeyDown(k Key) bool { return s.post(func() { s.input.KeyDown(k) }) }

// KeyUp 方向键松开
func (s *Session) KeyUp(k Key) bool { return s.post(func() { s.input.KeyUp(k) }) }

// Blur 窗口失焦，释放全部按键
func (s *Session) Blur() bool { return s.post(s.input.ReleaseAll) }

// Click 画布坐标点击移动
func (s *Session) Click(x, y float64) bool {
	return s.post(func() { s.input.Click(Vec2{X: x, Y: y}, s.camera.Camera(), s.world) })
}

// Zoom 按步进缩放（正数放大）
func (s *Session) Zoom(steps int) bool { return s.post(func() { s.camera.ZoomBy(steps) }) }

// SetZoom 设置缩放
func (s *Session) SetZoom(z float64) bool { return s.post(func() { s.camera.SetZoom(z) }) }

// Frame 帧驱动入口；会话繁忙时丢弃本帧而不阻塞驱动方
func (s *Session) Frame(nowMs float64) bool {
	if s.stopped() {
		return false
	}
	select {
	case s.events <- func() { s.frame(nowMs) }:
		return true
	default:
		return false
	}
}

// Status 在会话线程中生成状态快照
func (s *Session) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := s.postCtx(ctx, func() { reply <- s.snapshot() }); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-s.done:
		return Status{}, context.Canceled
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (s *Session) frame(nowMs float64) {
	start := time.Now()
	s.render.Frame(nowMs)
	s.metrics.ObserveFrame(time.Since(start).Seconds())
	s.metrics.SetEntities(s.world.Len())
}

func (s *Session) snapshot() Status {
	st := Status{
		State:            s.conn.State().String(),
		ConnID:           s.conn.AttemptID(),
		PlayerID:         s.world.LocalID(),
		Entities:         s.world.Len(),
		Camera:           s.camera.Camera(),
		Moving:           s.input.Moving(),
		ReconnectPending: s.conn.ReconnectPending(),
		PendingAssets:    s.assets.Pending(),
		BytesReceived:    s.conn.BytesReceived(),
	}
	if local, ok := s.world.Local(); ok {
		pos := local.Pos()
		st.Position = &pos
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// handleMessage 按消息类型合并到世界镜像
func (s *Session) handleMessage(msg Inbound) {
	switch m := msg.(type) {
	case *JoinResult:
		if !m.Success {
			s.lastErr = fmt.Errorf("%w: %s", ErrJoinRejected, m.Error)
			s.log.Error(s.lastErr)
			return
		}
		s.lastErr = nil
		s.world.ApplySnapshot(m.PlayerID, m.Players, m.Avatars)
		s.motion.Prune(s.world)
		s.anim.Prune(s.world)
		for _, a := range s.world.Avatars() {
			s.assets.RequestAvatar(a)
		}
		s.log.Infof("joined as %s with %d players, %d avatars", m.PlayerID, len(m.Players), len(m.Avatars))
	case *PlayersMoved:
		s.world.ApplyMoves(m.Players)
	case *PlayerJoined:
		s.world.Upsert(m.Player, m.Avatar)
		if m.Avatar != nil {
			s.assets.RequestAvatar(*m.Avatar)
		}
		s.log.Debugf("player joined: %s (%s)", m.Player.ID, m.Player.Username)
	case *PlayerLeft:
		s.world.Remove(m.PlayerID)
		s.motion.Forget(m.PlayerID)
		s.anim.Forget(m.PlayerID)
		s.log.Debugf("player left: %s", m.PlayerID)
	case *UnknownMessage:
		s.log.Warnf("ignoring unknown action %q", m.Name)
	}
	s.metrics.SetEntities(s.world.Len())
}

// sessionHandler 让 Session 不必公开 ConnectionHandler 方法
type sessionHandler struct{ s *Session }

func (h sessionHandler) OnConnected() {}

func (h sessionHandler) OnMessage(msg Inbound) { h.s.handleMessage(msg) }

// OnDisconnected 断线即失去本地身份；实体镜像保留到下一次快照
func (h sessionHandler) OnDisconnected(err error) {
	h.s.world.ClearLocal()
	if err != nil {
		h.s.lastErr = err
	}
}
