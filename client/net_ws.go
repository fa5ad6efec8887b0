package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultReconnectDelay 断线后固定延迟重连，无退避、无上限
const DefaultReconnectDelay = 3000 * time.Millisecond

// ConnState 连接状态
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn 消息式传输连接。ReadMessage 只在读协程调用，WriteMessage 只在写协程调用
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	Close() error
}

// Dialer 建立到固定端点的传输
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

const (
	defaultWriteWait = 5 * time.Second
	defaultPongWait  = 60 * time.Second
)

// WSDialer 基于 gorilla/websocket 的 Dialer。
// 读超时 PongWait 内收不到任何帧（含 pong）即视为断线；ping 间隔为其 9/10
type WSDialer struct {
	Dialer    *websocket.Dialer
	WriteWait time.Duration
	PongWait  time.Duration
	ReadLimit int64
}

func (d WSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = 1 << 20 // 1MB
	}
	ws.SetReadLimit(limit)
	c := &wsConn{
		ws:        ws,
		writeWait: orDefault(d.WriteWait, defaultWriteWait),
		pongWait:  orDefault(d.PongWait, defaultPongWait),
		done:      make(chan struct{}),
	}
	_ = ws.SetReadDeadline(time.Now().Add(c.pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(c.pongWait)) })
	go c.pingLoop()
	return c, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

type wsConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	pongWait  time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, payload, err := c.ws.ReadMessage()
	if err == nil {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	return payload, err
}

func (c *wsConn) WriteMessage(payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// pingLoop 定期发送 ping；WriteControl 可与写协程并发调用
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// link 一次成功建立的传输及其发送队列
type link struct {
	id        string
	gen       uint64
	conn      Conn
	send      chan []byte
	closeOnce sync.Once
}

func newLink(id string, gen uint64, conn Conn) *link {
	return &link{id: id, gen: gen, conn: conn, send: make(chan []byte, 64)}
}

// enqueue 非阻塞入队，满则丢弃（动作尽力而为，不排队补发）
func (l *link) enqueue(b []byte) bool {
	select {
	case l.send <- b:
		return true
	default:
		return false
	}
}

// close 只在会话线程调用，与 enqueue 不会并发。
// 已入队的消息由写协程写完后再关闭底层连接
func (l *link) close() {
	l.closeOnce.Do(func() { close(l.send) })
}

// writePump 独立协程，负责从 send 队列写出；退出时关闭连接，读协程随之报告断线
func (l *link) writePump() {
	defer l.conn.Close()
	for msg := range l.send {
		if err := l.conn.WriteMessage(msg); err != nil {
			return
		}
	}
}

// ConnectionHandler 接收连接事件；总是在会话线程回调
type ConnectionHandler interface {
	OnConnected()
	OnMessage(msg Inbound)
	OnDisconnected(err error)
}

// ConnOptions ConnectionManager 依赖
type ConnOptions struct {
	Endpoint       string
	Username       string
	ReconnectDelay time.Duration
	Dialer         Dialer
	Scheduler      Scheduler
	// Post 将回调投递到会话线程；会话已停止时返回 false
	Post    func(func()) bool
	Handler ConnectionHandler
	Log     *zap.SugaredLogger
	Metrics *Metrics
}

// ConnectionManager 管理传输会话：连接、固定延迟重连、发送、入站分派。
// 除读写协程外，所有方法都只在会话线程调用
type ConnectionManager struct {
	opts ConnOptions
	log  *zap.SugaredLogger

	ctx       context.Context
	state     ConnState
	gen       uint64
	attemptID string
	active    *link
	reconnect Timer
	retryGen  uint64
	closed    bool
	bytesIn   uint64
}

func NewConnectionManager(opts ConnOptions) *ConnectionManager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &ConnectionManager{opts: opts, log: opts.Log, ctx: context.Background()}
}

// Start 绑定拨号上下文并发起首次连接
func (m *ConnectionManager) Start(ctx context.Context) {
	m.ctx = ctx
	m.Connect()
}

// Connect 仅在 disconnected 状态下发起连接，拨号在独立协程完成
func (m *ConnectionManager) Connect() {
	if m.closed || m.state != StateDisconnected {
		return
	}
	m.gen++
	gen := m.gen
	m.attemptID = uuid.NewString()
	m.log = m.opts.Log.With("conn", m.attemptID)
	m.setState(StateConnecting)
	m.log.Infof("connecting to %s", m.opts.Endpoint)

	ctx := m.ctx
	go func() {
		conn, err := m.opts.Dialer.Dial(ctx, m.opts.Endpoint)
		ok := m.opts.Post(func() {
			if err != nil {
				m.handleClosed(gen, err)
				return
			}
			m.handleOpen(gen, conn)
		})
		if !ok && conn != nil {
			_ = conn.Close()
		}
	}()
}

// Send 未连接时静默丢弃；从不跨会话排队
func (m *ConnectionManager) Send(msg Outbound) bool {
	if m.state != StateConnected || m.active == nil {
		m.opts.Metrics.IncDropped("not_connected")
		return false
	}
	payload, err := EncodeOutbound(msg)
	if err != nil {
		m.log.Warnf("encode %s: %v", msg.Action(), err)
		m.opts.Metrics.IncDropped("encode")
		return false
	}
	if !m.active.enqueue(payload) {
		m.opts.Metrics.IncDropped("queue_full")
		return false
	}
	m.opts.Metrics.IncSent(msg.Action())
	return true
}

// Close 停止重连并关闭当前传输，之后不再自动连接
func (m *ConnectionManager) Close() {
	m.closed = true
	m.cancelReconnect()
	m.gen++
	if m.active != nil {
		m.active.close()
		m.active = nil
	}
	m.setState(StateDisconnected)
}

func (m *ConnectionManager) State() ConnState      { return m.state }
func (m *ConnectionManager) AttemptID() string     { return m.attemptID }
func (m *ConnectionManager) BytesReceived() uint64 { return m.bytesIn }

// ReconnectPending 是否有重连定时器在等待
func (m *ConnectionManager) ReconnectPending() bool { return m.reconnect != nil }

func (m *ConnectionManager) handleOpen(gen uint64, conn Conn) {
	if gen != m.gen || m.state != StateConnecting {
		_ = conn.Close()
		return
	}
	l := newLink(m.attemptID, gen, conn)
	m.active = l
	m.setState(StateConnected)
	m.log.Infof("connected to %s", m.opts.Endpoint)

	go l.writePump()
	go m.readPump(l)

	m.opts.Handler.OnConnected()
	m.Send(JoinRequest{Username: m.opts.Username})
}

// readPump 读取入站负载并投递到会话线程
func (m *ConnectionManager) readPump(l *link) {
	for {
		payload, err := l.conn.ReadMessage()
		if err != nil {
			m.opts.Post(func() { m.handleClosed(l.gen, err) })
			return
		}
		if !m.opts.Post(func() { m.handlePayload(l.gen, payload) }) {
			_ = l.conn.Close()
			return
		}
	}
}

func (m *ConnectionManager) handlePayload(gen uint64, payload []byte) {
	if gen != m.gen || m.state != StateConnected {
		return
	}
	m.bytesIn += uint64(len(payload))
	m.opts.Metrics.AddBytes(len(payload))
	msg, err := DecodeInbound(payload)
	if err != nil {
		m.opts.Metrics.IncDecodeError()
		m.log.Warnf("drop inbound payload (%d bytes): %v", len(payload), err)
		return
	}
	m.opts.Metrics.IncReceived(actionLabel(msg))
	for _, note := range SkippedEntries(msg) {
		m.log.Warnf("%s: skipped %s", msg.Action(), note)
	}
	m.opts.Handler.OnMessage(msg)
}

// actionLabel 未知 action 由服务端决定，统一归入一个标签
func actionLabel(msg Inbound) string {
	if _, ok := msg.(*UnknownMessage); ok {
		return "unknown"
	}
	return msg.Action()
}

// handleClosed 错误与正常关闭同样处理；同一传输只生效一次
func (m *ConnectionManager) handleClosed(gen uint64, err error) {
	if gen != m.gen || m.state == StateDisconnected {
		return
	}
	if m.active != nil {
		m.active.close()
		m.active = nil
	}
	m.setState(StateDisconnected)
	m.log.Warnf("transport closed: %v; retrying in %s", err, m.opts.ReconnectDelay)
	m.opts.Handler.OnDisconnected(err)
	m.scheduleReconnect()
}

// scheduleReconnect 至多一个待定的重连定时器
func (m *ConnectionManager) scheduleReconnect() {
	if m.closed || m.reconnect != nil {
		return
	}
	m.retryGen++
	gen := m.retryGen
	m.reconnect = m.opts.Scheduler.AfterFunc(m.opts.ReconnectDelay, func() {
		m.opts.Post(func() { m.fireReconnect(gen) })
	})
}

func (m *ConnectionManager) fireReconnect(gen uint64) {
	if gen != m.retryGen || m.reconnect == nil {
		return
	}
	m.reconnect = nil
	m.opts.Metrics.IncReconnect()
	m.Connect()
}

// cancelReconnect 先取消定时器再清空句柄
func (m *ConnectionManager) cancelReconnect() {
	if m.reconnect == nil {
		return
	}
	m.reconnect.Stop()
	m.reconnect = nil
	m.retryGen++
}

func (m *ConnectionManager) setState(s ConnState) {
	m.state = s
	m.opts.Metrics.SetState(s)
}
