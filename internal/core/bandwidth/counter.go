package bandwidth

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/pkg/interfaces"
	"github.com/portgate/go-portgate/pkg/types"
)

// ============================================================================
//                              带宽计数器
// ============================================================================

// Counter 带宽计数器实现
//
// 方向约定：out = 客户端→远端，in = 远端→客户端。
type Counter struct {
	cfg config.BandwidthConfig
	clk clock.Clock

	// 总量计量器
	totalIn  *Meter
	totalOut *Meter

	// 按外部端口的计量器
	mu      sync.Mutex
	portIn  map[int]*Meter
	portOut map[int]*Meter

	// 累计接受的连接数
	accepted atomic.Int64
}

// 确保实现接口
var _ interfaces.BandwidthReporter = (*Counter)(nil)

// NewCounter 创建带宽计数器
func NewCounter(cfg config.BandwidthConfig, clk clock.Clock) *Counter {
	return &Counter{
		cfg:      cfg,
		clk:      clk,
		totalIn:  NewMeter(clk),
		totalOut: NewMeter(clk),
		portIn:   make(map[int]*Meter),
		portOut:  make(map[int]*Meter),
	}
}

// ==================== 记录流量 ====================

// LogRecv 记录入站字节（远端→客户端）
func (c *Counter) LogRecv(externalPort int, n int64) {
	if !c.cfg.Enabled || n <= 0 {
		return
	}

	c.totalIn.Mark(uint64(n))
	if c.cfg.TrackPerPort {
		c.portMeter(c.portIn, externalPort).Mark(uint64(n))
	}
}

// LogSent 记录出站字节（客户端→远端）
func (c *Counter) LogSent(externalPort int, n int64) {
	if !c.cfg.Enabled || n <= 0 {
		return
	}

	c.totalOut.Mark(uint64(n))
	if c.cfg.TrackPerPort {
		c.portMeter(c.portOut, externalPort).Mark(uint64(n))
	}
}

// LogAccepted 记录一次接受的连接
func (c *Counter) LogAccepted() {
	c.accepted.Add(1)
}

// ==================== 获取统计 ====================

// Totals 返回全局带宽统计
func (c *Counter) Totals() types.BandwidthStats {
	inSnap := c.totalIn.Snapshot()
	outSnap := c.totalOut.Snapshot()

	return types.BandwidthStats{
		TotalIn:  int64(inSnap.Total),
		TotalOut: int64(outSnap.Total),
		RateIn:   inSnap.Rate,
		RateOut:  outSnap.Rate,
	}
}

// ForPort 返回指定外部端口的带宽统计
func (c *Counter) ForPort(externalPort int) types.BandwidthStats {
	c.mu.Lock()
	in, hasIn := c.portIn[externalPort]
	out, hasOut := c.portOut[externalPort]
	c.mu.Unlock()

	var stats types.BandwidthStats
	if hasIn {
		snap := in.Snapshot()
		stats.TotalIn = int64(snap.Total)
		stats.RateIn = snap.Rate
	}
	if hasOut {
		snap := out.Snapshot()
		stats.TotalOut = int64(snap.Total)
		stats.RateOut = snap.Rate
	}
	return stats
}

// AcceptedTotal 返回累计接受的连接数
func (c *Counter) AcceptedTotal() int64 {
	return c.accepted.Load()
}

// portMeter 获取（或创建）端口计量器
func (c *Counter) portMeter(meters map[int]*Meter, port int) *Meter {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := meters[port]
	if !ok {
		m = NewMeter(c.clk)
		meters[port] = m
	}
	return m
}
