package proxy

import (
	"net"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	tec "github.com/jbenet/go-temp-err-catcher"

	"github.com/portgate/go-portgate/internal/core/bandwidth"
	"github.com/portgate/go-portgate/internal/core/forward"
	"github.com/portgate/go-portgate/pkg/types"
)

// ============================================================================
//                              activeProxy
// ============================================================================

// activeProxy 一个活跃监听器及其簿记
//
// 持有绑定的监听 socket、目标信息、在途连接配对集合，
// 以及最近关闭连接的有界历史环。
type activeProxy struct {
	port       int
	host       string
	remotePort int

	ln  net.Listener
	fwd *forward.Forwarder
	bw  *bandwidth.Counter

	// done 接受循环退出信号
	done   chan struct{}
	closed atomic.Bool

	mu      sync.Mutex
	state   types.ProxyState
	conns   map[string]*forward.Pairing
	history *lru.Cache[string, types.ConnSnapshot]
}

// newActiveProxy 创建活跃代理
func newActiveProxy(port int, host string, remotePort int, ln net.Listener, fwd *forward.Forwarder, bw *bandwidth.Counter, historySize int) *activeProxy {
	history, _ := lru.New[string, types.ConnSnapshot](historySize)
	return &activeProxy{
		port:       port,
		host:       host,
		remotePort: remotePort,
		ln:         ln,
		fwd:        fwd,
		bw:         bw,
		done:       make(chan struct{}),
		state:      types.StateRunning,
		conns:      make(map[string]*forward.Pairing),
		history:    history,
	}
}

// acceptLoop 接受连接循环
//
// 每个接受的连接立即移交到自己的 goroutine，慢速或停滞的远端
// 不会延迟后续连接的接受。循环退出时先关闭 done，再通知注册表，
// 使正常 stop 路径的有界等待先行返回。
func (ap *activeProxy) acceptLoop(onExit func(*activeProxy)) {
	defer onExit(ap)
	defer close(ap.done)

	var catcher tec.TempErrCatcher
	for {
		conn, err := ap.ln.Accept()
		if err != nil {
			if ap.closed.Load() {
				// 正常停止路径：socket 已被 stop 关闭
				return
			}
			if catcher.IsTemporary(err) {
				log.Debug("接受连接暂时性失败", "port", ap.port, "err", err)
				continue
			}
			log.Warn("接受循环退出", "port", ap.port, "err", err)
			return
		}

		if ap.bw != nil {
			ap.bw.LogAccepted()
		}
		go ap.handleConn(conn)
	}
}

// handleConn 处理一个接受的连接
func (ap *activeProxy) handleConn(conn net.Conn) {
	pairing, err := ap.fwd.Forward(conn, ap.port, ap.host, ap.remotePort, ap.onPairingDone)
	if err != nil {
		// 连接远端失败：客户端连接已被转发器关闭，无需重试
		log.Debug("转发建立失败", "port", ap.port, "host", ap.host, "err", err)
		return
	}

	ap.mu.Lock()
	ap.conns[pairing.ID()] = pairing
	ap.mu.Unlock()

	// 配对可能在登记之前就已结束，补一次清理
	select {
	case <-pairing.Done():
		ap.onPairingDone(pairing)
	default:
	}
}

// onPairingDone 配对结束后的簿记
func (ap *activeProxy) onPairingDone(p *forward.Pairing) {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	delete(ap.conns, p.ID())
	ap.history.Add(p.ID(), p.Snapshot())
}

// closePairings 强制关闭所有在途配对
func (ap *activeProxy) closePairings() {
	ap.mu.Lock()
	pairings := make([]*forward.Pairing, 0, len(ap.conns))
	for _, p := range ap.conns {
		pairings = append(pairings, p)
	}
	ap.mu.Unlock()

	for _, p := range pairings {
		p.Close()
	}
}

// setState 更新生命周期状态
func (ap *activeProxy) setState(s types.ProxyState) {
	ap.mu.Lock()
	ap.state = s
	ap.mu.Unlock()
}

// sameTarget 判断目标是否一致
func (ap *activeProxy) sameTarget(host string, remotePort int) bool {
	return ap.host == host && ap.remotePort == remotePort
}

// snapshot 返回代理的只读快照
func (ap *activeProxy) snapshot() types.ProxySnapshot {
	ap.mu.Lock()
	state := ap.state
	conns := make([]types.ConnSnapshot, 0, len(ap.conns))
	for _, p := range ap.conns {
		conns = append(conns, p.Snapshot())
	}
	history := ap.history.Values()
	ap.mu.Unlock()

	snap := types.ProxySnapshot{
		ExternalPort: ap.port,
		RemoteHost:   ap.host,
		RemotePort:   ap.remotePort,
		State:        state,
		ActiveConns:  len(conns),
		Conns:        conns,
		History:      history,
	}

	if ap.bw != nil {
		stats := ap.bw.ForPort(ap.port)
		snap.BytesIn = stats.TotalIn
		snap.BytesOut = stats.TotalOut
	}
	return snap
}
