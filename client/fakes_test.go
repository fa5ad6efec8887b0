package client

import (
	"context"
	"errors"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTimer 手动触发的定时器
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler 记录所有定时器，由测试决定何时触发
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// pending 尚未触发且未取消的定时器
func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

// fireAll 触发全部待定定时器
func (s *fakeScheduler) fireAll() int {
	ts := s.pending()
	for _, t := range ts {
		t.fired = true
		t.f()
	}
	return len(ts)
}

// testLoop 模拟会话线程：投递进通道，由测试协程执行
type testLoop struct {
	ch chan func()
}

func newTestLoop() *testLoop { return &testLoop{ch: make(chan func(), 256)} }

func (l *testLoop) post(fn func()) bool {
	l.ch <- fn
	return true
}

// drain 执行当前已排队的回调
func (l *testLoop) drain() {
	for {
		select {
		case fn := <-l.ch:
			fn()
		default:
			return
		}
	}
}

// pumpUntil 持续执行回调直到 cond 成立
func (l *testLoop) pumpUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case fn := <-l.ch:
			fn()
		case <-deadline:
			require.FailNow(t, "condition not reached")
		}
	}
}

// fakeConn 内存中的传输
type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(payload []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed conn")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(payload))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(payload string) { c.in <- []byte(payload) }

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer 每次拨号返回新的 fakeConn；fail 非空时拨号失败
type fakeDialer struct {
	mu    sync.Mutex
	fail  error
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// recordingHandler 记录连接事件（只在测试协程访问）
type recordingHandler struct {
	connected    int
	disconnected []error
	messages     []Inbound
}

func (h *recordingHandler) OnConnected()             { h.connected++ }
func (h *recordingHandler) OnMessage(msg Inbound)    { h.messages = append(h.messages, msg) }
func (h *recordingHandler) OnDisconnected(err error) { h.disconnected = append(h.disconnected, err) }

// fakeImage 固定尺寸的图片
type fakeImage struct{ w, h int }

func (i fakeImage) Size() (int, int) { return i.w, i.h }

// fakeLoader 记录请求，由测试决定结果
type fakeLoader struct {
	mu       sync.Mutex
	requests []string
	done     map[string]func(Image, error)
}

func newFakeLoader() *fakeLoader { return &fakeLoader{done: make(map[string]func(Image, error))} }

func (l *fakeLoader) LoadImage(url string, done func(Image, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, url)
	l.done[url] = done
}

func (l *fakeLoader) resolve(url string, img Image, err error) {
	l.mu.Lock()
	done := l.done[url]
	l.mu.Unlock()
	done(img, err)
}

func (l *fakeLoader) requested() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.requests...)
}

// drawCall 一次绘制调用
type drawCall struct {
	op     string
	img    Image
	src    Rect
	dst    Rect
	mirror bool
	text   string
	x, y   float64
	r      float64
	color  color.RGBA
	style  TextStyle
}

// recordingRenderer 记录每帧的绘制调用
type recordingRenderer struct {
	w, h  float64
	calls []drawCall
}

func newRecordingRenderer(w, h float64) *recordingRenderer {
	return &recordingRenderer{w: w, h: h}
}

func (r *recordingRenderer) Size() (float64, float64) { return r.w, r.h }
func (r *recordingRenderer) Clear()                   { r.calls = r.calls[:0] }

func (r *recordingRenderer) DrawSprite(img Image, src, dst Rect, mirror bool) {
	r.calls = append(r.calls, drawCall{op: "sprite", img: img, src: src, dst: dst, mirror: mirror})
}

func (r *recordingRenderer) DrawText(text string, x, y float64, style TextStyle) {
	r.calls = append(r.calls, drawCall{op: "text", text: text, x: x, y: y, style: style})
}

func (r *recordingRenderer) FillCircle(cx, cy, radius float64, c color.RGBA) {
	r.calls = append(r.calls, drawCall{op: "circle", x: cx, y: cy, r: radius, color: c})
}

func (r *recordingRenderer) FillRect(rect Rect, c color.RGBA) {
	r.calls = append(r.calls, drawCall{op: "fill", dst: rect, color: c})
}

func (r *recordingRenderer) StrokeRect(rect Rect, c color.RGBA) {
	r.calls = append(r.calls, drawCall{op: "stroke", dst: rect, color: c})
}

func (r *recordingRenderer) ops(op string) []drawCall {
	var out []drawCall
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingRenderer) texts() []string {
	var out []string
	for _, c := range r.ops("text") {
		out = append(out, c.text)
	}
	return out
}
