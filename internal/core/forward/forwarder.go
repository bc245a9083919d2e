// Package forward 提供每连接的双向字节转发
//
// 转发器是一个"哑管道"：不做任何应用层封帧、限速或背压协调，
// 负载是不透明的字节流。任一方向结束（EOF 或 I/O 错误）时，
// 两侧 socket 一起关闭，不保留半关闭状态。
package forward

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/core/bandwidth"
	"github.com/portgate/go-portgate/internal/util/logger"
	"github.com/portgate/go-portgate/pkg/types"
)

var log = logger.Logger("core/forward")

// ============================================================================
//                              Forwarder
// ============================================================================

// Forwarder 连接转发器
type Forwarder struct {
	cfg config.ForwardConfig
	bw  *bandwidth.Counter
}

// New 创建连接转发器
func New(cfg config.ForwardConfig, bw *bandwidth.Counter) *Forwarder {
	return &Forwarder{
		cfg: cfg,
		bw:  bw,
	}
}

// Forward 为已接受的客户端连接建立到远端目标的转发配对
//
// 连接远端受 DialTimeout 约束；失败时立即关闭客户端连接并返回错误，
// 不做重试——客户端需要重连以触发新的尝试。
// 成功时启动两个方向的拷贝 goroutine，onDone 在配对完全结束后被调用。
func (f *Forwarder) Forward(client net.Conn, externalPort int, remoteHost string, remotePort int, onDone func(*Pairing)) (*Pairing, error) {
	addr := net.JoinHostPort(remoteHost, strconv.Itoa(remotePort))

	remote, err := net.DialTimeout("tcp", addr, f.cfg.DialTimeout.Duration())
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	p := &Pairing{
		id:           uuid.NewString(),
		externalPort: externalPort,
		clientAddr:   client.RemoteAddr().String(),
		openedAt:     time.Now(),
		client:       client,
		remote:       remote,
		done:         make(chan struct{}),
	}

	log.Debug("转发配对已建立",
		"id", p.id,
		"client", p.clientAddr,
		"target", addr,
		"port", externalPort)

	go f.relay(p, onDone)
	return p, nil
}

// relay 运行两个方向的拷贝并在结束后收尾
func (f *Forwarder) relay(p *Pairing, onDone func(*Pairing)) {
	var wg sync.WaitGroup
	wg.Add(2)

	// 客户端 → 远端（out）
	go func() {
		defer wg.Done()
		f.copyDirection(p, p.remote, p.client, &p.bytesOut, f.logSent)
	}()

	// 远端 → 客户端（in）
	go func() {
		defer wg.Done()
		f.copyDirection(p, p.client, p.remote, &p.bytesIn, f.logRecv)
	}()

	wg.Wait()

	p.mu.Lock()
	p.closedAt = time.Now()
	p.mu.Unlock()
	close(p.done)

	log.Debug("转发配对已结束",
		"id", p.id,
		"bytesIn", p.bytesIn.Load(),
		"bytesOut", p.bytesOut.Load())

	if onDone != nil {
		onDone(p)
	}
}

// copyDirection 单方向拷贝，结束后关闭整个配对
//
// 任一方向读到 EOF 或出错，两侧 socket 一起关闭，
// 使另一方向的阻塞读写随之失败退出。
func (f *Forwarder) copyDirection(p *Pairing, dst, src net.Conn, count *atomic.Int64, record func(int, int64)) {
	defer p.Close()

	buf := make([]byte, f.cfg.BufferSize)
	w := &meterWriter{w: dst, port: p.externalPort, count: count, record: record}

	_, err := io.CopyBuffer(w, src, buf)
	if err != nil && !isClosedConnError(err) {
		// 中途的 I/O 错误只终止本配对，不向监听器传播
		log.Debug("转发中断", "id", p.id, "err", err)
	}
}

// logSent 记录出站字节
func (f *Forwarder) logSent(port int, n int64) {
	if f.bw != nil {
		f.bw.LogSent(port, n)
	}
}

// logRecv 记录入站字节
func (f *Forwarder) logRecv(port int, n int64) {
	if f.bw != nil {
		f.bw.LogRecv(port, n)
	}
}

// ============================================================================
//                              Pairing
// ============================================================================

// Pairing 一个转发连接配对
//
// 持有客户端与远端两条连接以及两个方向的字节计数，
// 生命周期到任一侧关闭或出错为止。
type Pairing struct {
	id           string
	externalPort int
	clientAddr   string
	openedAt     time.Time

	client net.Conn
	remote net.Conn

	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	closedAt time.Time
}

// ID 返回配对的唯一标识
func (p *Pairing) ID() string {
	return p.id
}

// Close 关闭配对的两侧连接（幂等）
func (p *Pairing) Close() {
	p.closeOnce.Do(func() {
		_ = p.client.Close()
		_ = p.remote.Close()
	})
}

// Done 返回配对结束信号
func (p *Pairing) Done() <-chan struct{} {
	return p.done
}

// Snapshot 返回配对的只读快照
func (p *Pairing) Snapshot() types.ConnSnapshot {
	p.mu.Lock()
	closedAt := p.closedAt
	p.mu.Unlock()

	return types.ConnSnapshot{
		ID:         p.id,
		ClientAddr: p.clientAddr,
		OpenedAt:   p.openedAt,
		ClosedAt:   closedAt,
		BytesIn:    p.bytesIn.Load(),
		BytesOut:   p.bytesOut.Load(),
	}
}

// ============================================================================
//                              辅助
// ============================================================================

// meterWriter 在写入的同时累计字节数
type meterWriter struct {
	w      io.Writer
	port   int
	count  *atomic.Int64
	record func(port int, n int64)
}

func (m *meterWriter) Write(b []byte) (int, error) {
	n, err := m.w.Write(b)
	if n > 0 {
		m.count.Add(int64(n))
		if m.record != nil {
			m.record(m.port, int64(n))
		}
	}
	return n, err
}

// isClosedConnError 判断是否为连接已关闭导致的错误
//
// 配对关闭时另一方向会收到此类错误，属预期路径。
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
