package client

import "time"

// Timer 可取消的一次性定时器
type Timer interface {
	Stop() bool
}

// Scheduler 定时器来源；回调运行在任意协程，调用方负责投递回会话线程
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler 基于 time.AfterFunc
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
