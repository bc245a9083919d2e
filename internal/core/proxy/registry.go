// Package proxy 提供代理注册表与监听器生命周期管理
//
// 注册表是"哪些端口正在转发"的唯一事实来源。
// 每个外部端口经历 absent → starting → running → stopping → absent
// 的状态机；同一端口的生命周期迁移串行化，不同端口相互独立。
// 接受循环和转发 I/O 永远不阻塞注册表的簿记操作。
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/net/netutil"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/core/bandwidth"
	"github.com/portgate/go-portgate/internal/core/forward"
	"github.com/portgate/go-portgate/internal/util/logger"
	"github.com/portgate/go-portgate/pkg/interfaces"
	"github.com/portgate/go-portgate/pkg/types"
)

var log = logger.Logger("core/proxy")

// ============================================================================
//                              Registry
// ============================================================================

// Registry 活跃监听器注册表
type Registry struct {
	cfg config.ProxyConfig
	fwd *forward.Forwarder
	bw  *bandwidth.Counter

	// slots 按端口的生命周期槽；slot.mu 串行化该端口的迁移
	// running 仅用于无阻塞的快照读取，与 slot.proxy 同步更新
	mu      sync.Mutex
	slots   map[int]*portSlot
	running map[int]*activeProxy
}

// portSlot 单个端口的生命周期槽
type portSlot struct {
	mu    sync.Mutex
	proxy *activeProxy
}

// 确保实现接口
var _ interfaces.ProxyRegistry = (*Registry)(nil)

// NewRegistry 创建代理注册表
func NewRegistry(cfg config.ProxyConfig, fwd *forward.Forwarder, bw *bandwidth.Counter) *Registry {
	return &Registry{
		cfg:     cfg,
		fwd:     fwd,
		bw:      bw,
		slots:   make(map[int]*portSlot),
		running: make(map[int]*activeProxy),
	}
}

// Ensure 确保指定端口上运行着指向 (host, remotePort) 的监听器
//
// 目标相同时幂等无操作；目标不同时先停旧再启新（last-writer-wins），
// 旧监听器上已建立的连接不被强制关闭，由其自然结束。
// 绑定失败同步返回错误，该端口回滚到 absent。
func (r *Registry) Ensure(ctx context.Context, externalPort int, host string, remotePort int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slot := r.slot(externalPort)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if cur := slot.proxy; cur != nil {
		if cur.sameTarget(host, remotePort) {
			log.Debug("监听器已在运行，目标一致", "port", externalPort)
			return nil
		}
		// 目标变更：先停旧监听器
		log.Info("替换监听器目标",
			"port", externalPort,
			"oldTarget", net.JoinHostPort(cur.host, strconv.Itoa(cur.remotePort)),
			"newTarget", net.JoinHostPort(host, strconv.Itoa(remotePort)))
		if err := r.stopSlotLocked(slot, false); err != nil {
			// 旧循环未按时确认也继续尝试启动；端口若仍被占用，绑定会失败
			log.Warn("停止旧监听器未完全确认", "port", externalPort, "err", err)
		}
	}

	// starting → 绑定
	ln, err := net.Listen("tcp", net.JoinHostPort(r.cfg.ListenHost, strconv.Itoa(externalPort)))
	if err != nil {
		return fmt.Errorf("bind port %d: %w", externalPort, err)
	}
	if r.cfg.MaxConnsPerProxy > 0 {
		ln = netutil.LimitListener(ln, r.cfg.MaxConnsPerProxy)
	}

	ap := newActiveProxy(externalPort, host, remotePort, ln, r.fwd, r.bw, r.cfg.ConnHistorySize)
	slot.proxy = ap
	r.setRunning(externalPort, ap)

	go ap.acceptLoop(r.onAcceptExit)

	log.Info("监听器已启动",
		"port", externalPort,
		"target", net.JoinHostPort(host, strconv.Itoa(remotePort)))
	return nil
}

// Stop 停止指定端口的监听器
//
// 先关闭监听 socket 使阻塞中的 accept 失败退出，再有界等待确认。
// 端口本就空闲时返回 ErrNotRunning。
func (r *Registry) Stop(externalPort int) error {
	r.mu.Lock()
	slot, ok := r.slots[externalPort]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("port %d: %w", externalPort, ErrNotRunning)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.proxy == nil {
		return fmt.Errorf("port %d: %w", externalPort, ErrNotRunning)
	}
	return r.stopSlotLocked(slot, r.cfg.CloseConnsOnStop)
}

// StopAll 停止所有活跃监听器，错误聚合返回
func (r *Registry) StopAll() error {
	r.mu.Lock()
	ports := make([]int, 0, len(r.running))
	for port := range r.running {
		ports = append(ports, port)
	}
	r.mu.Unlock()

	var errs error
	for _, port := range ports {
		if err := r.Stop(port); err != nil && !isNotRunning(err) {
			errs = multierr.Append(errs, err)
		}
	}

	log.Info("所有监听器已停止", "count", len(ports))
	return errs
}

// Snapshot 返回注册表的只读快照，按端口排序
//
// 只读取运行表和各代理的簿记，不触碰生命周期锁，
// 因此不会被进行中的 stop 等待阻塞。
func (r *Registry) Snapshot() []types.ProxySnapshot {
	r.mu.Lock()
	proxies := make([]*activeProxy, 0, len(r.running))
	for _, ap := range r.running {
		proxies = append(proxies, ap)
	}
	r.mu.Unlock()

	snaps := make([]types.ProxySnapshot, 0, len(proxies))
	for _, ap := range proxies {
		snaps = append(snaps, ap.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].ExternalPort < snaps[j].ExternalPort
	})
	return snaps
}

// ============================================================================
//                              内部方法
// ============================================================================

// slot 获取（或创建）端口的生命周期槽
func (r *Registry) slot(port int) *portSlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[port]
	if !ok {
		s = &portSlot{}
		r.slots[port] = s
	}
	return s
}

// setRunning 更新无锁快照用的运行表
func (r *Registry) setRunning(port int, ap *activeProxy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ap == nil {
		delete(r.running, port)
	} else {
		r.running[port] = ap
	}
}

// stopSlotLocked 停止槽内的监听器（调用方须持 slot.mu）
//
// 顺序固定：先关闭监听 socket，再等待接受循环确认。
// 关闭在前保证等待不会无界阻塞。
func (r *Registry) stopSlotLocked(slot *portSlot, closeConns bool) error {
	ap := slot.proxy
	ap.setState(types.StateStopping)
	ap.closed.Store(true)
	_ = ap.ln.Close()

	var err error
	select {
	case <-ap.done:
	case <-time.After(r.cfg.StopTimeout.Duration()):
		err = fmt.Errorf("port %d: %w", ap.port, ErrStopTimeout)
	}

	if closeConns {
		ap.closePairings()
	}

	slot.proxy = nil
	r.setRunning(ap.port, nil)

	log.Info("监听器已停止", "port", ap.port, "closedConns", closeConns)
	return err
}

// onAcceptExit 接受循环退出后的注册表清理
//
// 正常 stop 路径里槽位已被清空，这里是无操作；
// 意外退出时必须移除表项，状态查询不得把死掉的监听器报告为 running。
func (r *Registry) onAcceptExit(ap *activeProxy) {
	r.mu.Lock()
	slot, ok := r.slots[ap.port]
	r.mu.Unlock()
	if !ok {
		return
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.proxy == ap {
		slot.proxy = nil
		r.setRunning(ap.port, nil)
		log.Warn("接受循环意外退出，已移除注册表项", "port", ap.port)
	}
}

// isNotRunning 判断是否为 ErrNotRunning
func isNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}
