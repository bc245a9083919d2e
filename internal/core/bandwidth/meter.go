// Package bandwidth 提供转发流量的字节计量
//
// Counter 按方向和外部端口累计转发字节数，并维护一个
// 基于时间窗口的速率估计。时间源可注入，便于测试。
package bandwidth

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateWindow 速率估计的最小窗口
const rateWindow = time.Second

// ============================================================================
//                              Meter
// ============================================================================

// Meter 单方向字节计量器
type Meter struct {
	clk clock.Clock

	mu          sync.Mutex
	total       uint64
	windowStart time.Time
	windowBytes uint64
	rate        float64
}

// Snapshot 计量器快照
type Snapshot struct {
	// Total 累计字节数
	Total uint64

	// Rate 最近窗口的速率（字节/秒）
	Rate float64
}

// NewMeter 创建计量器
func NewMeter(clk clock.Clock) *Meter {
	return &Meter{
		clk:         clk,
		windowStart: clk.Now(),
	}
}

// Mark 记录 n 个字节
func (m *Meter) Mark(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total += n
	m.rotateLocked()
	m.windowBytes += n
}

// Snapshot 返回当前快照
func (m *Meter) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rotateLocked()
	return Snapshot{
		Total: m.total,
		Rate:  m.rate,
	}
}

// rotateLocked 窗口满一秒后结算速率（调用方须持锁）
func (m *Meter) rotateLocked() {
	now := m.clk.Now()
	elapsed := now.Sub(m.windowStart)
	if elapsed < rateWindow {
		return
	}

	m.rate = float64(m.windowBytes) / elapsed.Seconds()
	m.windowBytes = 0
	m.windowStart = now
}
