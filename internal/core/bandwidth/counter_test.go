package bandwidth

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/portgate/go-portgate/config"
)

// TestCounter_Totals 总量按方向累计
func TestCounter_Totals(t *testing.T) {
	c := NewCounter(config.DefaultBandwidthConfig(), clock.NewMock())

	c.LogRecv(10000, 100)
	c.LogRecv(10000, 50)
	c.LogSent(10000, 30)

	stats := c.Totals()
	assert.Equal(t, int64(150), stats.TotalIn)
	assert.Equal(t, int64(30), stats.TotalOut)
}

// TestCounter_PerPort 按外部端口分别统计
func TestCounter_PerPort(t *testing.T) {
	c := NewCounter(config.DefaultBandwidthConfig(), clock.NewMock())

	c.LogRecv(10000, 100)
	c.LogSent(10001, 200)

	assert.Equal(t, int64(100), c.ForPort(10000).TotalIn)
	assert.Equal(t, int64(0), c.ForPort(10000).TotalOut)
	assert.Equal(t, int64(200), c.ForPort(10001).TotalOut)

	// 未知端口返回零值
	assert.Equal(t, int64(0), c.ForPort(12345).TotalIn)
}

// TestCounter_Disabled 统计关闭时不记录
func TestCounter_Disabled(t *testing.T) {
	c := NewCounter(config.BandwidthConfig{Enabled: false}, clock.NewMock())

	c.LogRecv(10000, 100)
	c.LogSent(10000, 100)

	stats := c.Totals()
	assert.Equal(t, int64(0), stats.TotalIn)
	assert.Equal(t, int64(0), stats.TotalOut)
}

// TestCounter_Accepted 接受连接计数
func TestCounter_Accepted(t *testing.T) {
	c := NewCounter(config.DefaultBandwidthConfig(), clock.NewMock())

	assert.Equal(t, int64(0), c.AcceptedTotal())
	c.LogAccepted()
	c.LogAccepted()
	assert.Equal(t, int64(2), c.AcceptedTotal())
}

// TestMeter_Rate 窗口结算后产生速率估计
func TestMeter_Rate(t *testing.T) {
	mock := clock.NewMock()
	m := NewMeter(mock)

	m.Mark(1000)
	mock.Add(2 * time.Second)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1000), snap.Total)
	assert.InDelta(t, 500.0, snap.Rate, 1.0)
}
