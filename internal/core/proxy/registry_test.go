package proxy

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/core/bandwidth"
	"github.com/portgate/go-portgate/internal/core/forward"
	"github.com/portgate/go-portgate/pkg/types"
)

func newTestRegistry(t *testing.T, mutate func(*config.ProxyConfig)) *Registry {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Proxy.ListenHost = "127.0.0.1"
	if mutate != nil {
		mutate(&cfg.Proxy)
	}

	bw := bandwidth.NewCounter(cfg.Bandwidth, clock.New())
	fwd := forward.New(config.ForwardConfig{
		DialTimeout: config.Duration(2 * time.Second),
		BufferSize:  4096,
	}, bw)

	reg := NewRegistry(cfg.Proxy, fwd, bw)
	t.Cleanup(func() { _ = reg.StopAll() })
	return reg
}

// freePort 申请一个当前空闲的本地端口
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// startEchoServer 启动一个回显服务器，返回其端口
func startEchoServer(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

// dialPort 连接本地外部端口
func dialPort(t *testing.T, port int) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// TestEnsure_RelaysTraffic absent→running，连接被端到端转发
func TestEnsure_RelaysTraffic(t *testing.T) {
	reg := newTestRegistry(t, nil)
	echoPort := startEchoServer(t)
	extPort := freePort(t)

	require.NoError(t, reg.Ensure(context.Background(), extPort, "127.0.0.1", echoPort))

	conn := dialPort(t, extPort)
	payload := []byte("round trip payload")
	_, err := conn.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestEnsure_Idempotent 目标一致的重复 ensure 是无操作
func TestEnsure_Idempotent(t *testing.T) {
	reg := newTestRegistry(t, nil)
	echoPort := startEchoServer(t)
	extPort := freePort(t)

	ctx := context.Background()
	require.NoError(t, reg.Ensure(ctx, extPort, "127.0.0.1", echoPort))
	require.NoError(t, reg.Ensure(ctx, extPort, "127.0.0.1", echoPort))

	assert.Len(t, reg.Snapshot(), 1)
}

// TestEnsure_ReplacesTarget 目标不同触发先停后启的替换
func TestEnsure_ReplacesTarget(t *testing.T) {
	reg := newTestRegistry(t, nil)
	oldEcho := startEchoServer(t)
	extPort := freePort(t)

	ctx := context.Background()
	require.NoError(t, reg.Ensure(ctx, extPort, "127.0.0.1", oldEcho))

	// 新目标：一个只回写固定字节的服务
	newLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer newLn.Close()
	go func() {
		for {
			conn, err := newLn.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("X"))
			_ = conn.Close()
		}
	}()
	newPort := newLn.Addr().(*net.TCPAddr).Port

	require.NoError(t, reg.Ensure(ctx, extPort, "127.0.0.1", newPort))

	snaps := reg.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, newPort, snaps[0].RemotePort)

	// 新连接到达新目标
	conn := dialPort(t, extPort)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	got := make([]byte, 1)
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, []byte("X"), got)
}

// TestReplace_KeepsOldConnections 替换不强制关闭旧目标上的在途连接
func TestReplace_KeepsOldConnections(t *testing.T) {
	reg := newTestRegistry(t, nil)
	oldEcho := startEchoServer(t)
	newEcho := startEchoServer(t)
	extPort := freePort(t)

	ctx := context.Background()
	require.NoError(t, reg.Ensure(ctx, extPort, "127.0.0.1", oldEcho))

	// 建立一条到旧目标的连接
	oldConn := dialPort(t, extPort)
	_, err := oldConn.Write([]byte("ping"))
	require.NoError(t, err)
	got := make([]byte, 4)
	require.NoError(t, oldConn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(oldConn, got)
	require.NoError(t, err)

	// 替换目标
	require.NoError(t, reg.Ensure(ctx, extPort, "127.0.0.1", newEcho))

	// 旧连接仍然对着旧目标工作
	_, err = oldConn.Write([]byte("pong"))
	require.NoError(t, err)
	require.NoError(t, oldConn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(oldConn, got)
	assert.NoError(t, err)
}

// TestStop_RefusesNewConnections stop 后新的连接尝试被拒绝
func TestStop_RefusesNewConnections(t *testing.T) {
	reg := newTestRegistry(t, nil)
	echoPort := startEchoServer(t)
	extPort := freePort(t)

	require.NoError(t, reg.Ensure(context.Background(), extPort, "127.0.0.1", echoPort))
	require.NoError(t, reg.Stop(extPort))

	_, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(extPort), time.Second)
	assert.Error(t, err)
	assert.Empty(t, reg.Snapshot())
}

// TestStop_NotRunning 对空闲端口的 stop 报告"本就未运行"
func TestStop_NotRunning(t *testing.T) {
	reg := newTestRegistry(t, nil)
	echoPort := startEchoServer(t)
	extPort := freePort(t)

	// 从未 ensure 过的端口
	err := reg.Stop(extPort)
	assert.ErrorIs(t, err, ErrNotRunning)

	// 已经停止的端口
	require.NoError(t, reg.Ensure(context.Background(), extPort, "127.0.0.1", echoPort))
	require.NoError(t, reg.Stop(extPort))
	err = reg.Stop(extPort)
	assert.ErrorIs(t, err, ErrNotRunning)
}

// TestEnsure_BindFailure 端口被占用时同步报错且注册表回滚到 absent
func TestEnsure_BindFailure(t *testing.T) {
	reg := newTestRegistry(t, nil)
	echoPort := startEchoServer(t)

	// 先占住端口
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()
	extPort := blocker.Addr().(*net.TCPAddr).Port

	err = reg.Ensure(context.Background(), extPort, "127.0.0.1", echoPort)
	require.Error(t, err)

	// 注册表不得显示一个绑定失败的监听器
	assert.Empty(t, reg.Snapshot())
	assert.ErrorIs(t, reg.Stop(extPort), ErrNotRunning)
}

// TestStop_CloseConnsOnStop 配置开启时 stop 同时拆除在途配对
func TestStop_CloseConnsOnStop(t *testing.T) {
	reg := newTestRegistry(t, func(c *config.ProxyConfig) {
		c.CloseConnsOnStop = true
	})
	echoPort := startEchoServer(t)
	extPort := freePort(t)

	require.NoError(t, reg.Ensure(context.Background(), extPort, "127.0.0.1", echoPort))

	conn := dialPort(t, extPort)
	_, err := conn.Write([]byte("hi"))
	require.NoError(t, err)
	got := make([]byte, 2)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)

	require.NoError(t, reg.Stop(extPort))

	// 在途连接被强制关闭，后续读失败
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

// TestSnapshot_Bookkeeping 快照包含目标与连接计数
func TestSnapshot_Bookkeeping(t *testing.T) {
	reg := newTestRegistry(t, nil)
	echoPort := startEchoServer(t)
	extPort := freePort(t)

	require.NoError(t, reg.Ensure(context.Background(), extPort, "127.0.0.1", echoPort))

	conn := dialPort(t, extPort)
	_, err := conn.Write([]byte("abc"))
	require.NoError(t, err)
	got := make([]byte, 3)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)

	snaps := reg.Snapshot()
	require.Len(t, snaps, 1)
	snap := snaps[0]
	assert.Equal(t, extPort, snap.ExternalPort)
	assert.Equal(t, "127.0.0.1", snap.RemoteHost)
	assert.Equal(t, echoPort, snap.RemotePort)
	assert.Equal(t, types.StateRunning, snap.State)
	assert.Equal(t, 1, snap.ActiveConns)
	assert.Equal(t, int64(3), snap.BytesOut)

	// 连接结束后进入历史环
	conn.Close()
	require.Eventually(t, func() bool {
		snaps := reg.Snapshot()
		return len(snaps) == 1 && snaps[0].ActiveConns == 0 && len(snaps[0].History) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

// TestStopAll 停止所有监听器
func TestStopAll(t *testing.T) {
	reg := newTestRegistry(t, nil)
	echoPort := startEchoServer(t)

	ctx := context.Background()
	ports := []int{freePort(t), freePort(t), freePort(t)}
	for _, p := range ports {
		require.NoError(t, reg.Ensure(ctx, p, "127.0.0.1", echoPort))
	}
	require.Len(t, reg.Snapshot(), 3)

	require.NoError(t, reg.StopAll())
	assert.Empty(t, reg.Snapshot())

	for _, p := range ports {
		_, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(p), time.Second)
		assert.Error(t, err)
	}
}

// TestEnsure_ContextCanceled 已取消的 context 直接返回
func TestEnsure_ContextCanceled(t *testing.T) {
	reg := newTestRegistry(t, nil)
	extPort := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reg.Ensure(ctx, extPort, "127.0.0.1", 9)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reg.Snapshot())
}
