package client

import (
	"context"
	"time"
)

// DefaultFPS 帧驱动默认频率
const DefaultFPS = 60

// FrameSink 接收帧时间戳（毫秒，单调递增）
type FrameSink interface {
	Frame(nowMs float64) bool
}

// RunFrameDriver 以固定频率驱动帧，直到 ctx 取消。
// 时间戳取自单调时钟，相邻帧间隔可变；会话繁忙时该帧被丢弃
func RunFrameDriver(ctx context.Context, fps int, sink FrameSink) {
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sink.Frame(float64(time.Since(start)) / float64(time.Millisecond))
		}
	}
}
