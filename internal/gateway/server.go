// Package gateway 提供 HTTP 接入与状态网关
//
// 网关是请求接入前端和只读展示协作方的一个内置实现，
// 只消费引擎的窄接口（pkg/interfaces.Engine），引擎不依赖网关。
//
// 端点:
//   - GET/POST /forward   请求转发（可选 ?redirect=1 跳转到转发地址）
//   - GET      /mappings  持久化的映射集合
//   - DELETE   /mappings  管理性删除一条映射
//   - GET      /status    代理注册表快照与带宽统计
//   - GET      /ws/status 周期性推送状态快照（WebSocket）
//   - GET      /metrics   Prometheus 指标
//   - GET      /healthz   存活探针
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/util/logger"
	"github.com/portgate/go-portgate/pkg/interfaces"
	"github.com/portgate/go-portgate/pkg/types"
)

var log = logger.Logger("gateway")

// ============================================================================
//                              Server
// ============================================================================

// Server 网关 HTTP 服务
type Server struct {
	cfg    config.GatewayConfig
	engine interfaces.Engine
	bw     interfaces.BandwidthReporter

	server   *http.Server
	listener net.Listener

	// closed 通知 WebSocket 推送循环退出
	closed chan struct{}

	running   bool
	startTime time.Time
	mu        sync.Mutex
}

// New 创建网关服务
func New(cfg config.GatewayConfig, engine interfaces.Engine, bw interfaces.BandwidthReporter) *Server {
	return &Server{
		cfg:    cfg,
		engine: engine,
		bw:     bw,
		closed: make(chan struct{}),
	}
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/forward", s.handleForward)
	mux.HandleFunc("/mappings", s.handleMappings)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws/status", s.handleWSStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)

	if s.cfg.EnableMetrics {
		reg := newMetrics(s.engine, s.bw)
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("网关服务异常退出", "err", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()

	log.Info("网关已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.closed)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}

	log.Info("网关已停止")
	return nil
}

// Addr 返回实际监听地址（监听前为空）
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ============================================================================
//                              处理器
// ============================================================================

// forwardResponse /forward 的成功响应
type forwardResponse struct {
	Host         string `json:"host"`
	Protocol     string `json:"protocol"`
	ExternalPort int    `json:"external_port"`
	URL          string `json:"url"`
}

// handleForward 请求转发
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	host := r.FormValue("host")
	if host == "" {
		// 兼容 ip 参数名
		host = r.FormValue("ip")
	}
	protocol := r.FormValue("protocol")
	if host == "" || protocol == "" {
		writeError(w, http.StatusBadRequest, "host and protocol are required")
		return
	}

	port, err := s.engine.RequestForward(r.Context(), host, protocol)
	if err != nil {
		status := http.StatusInternalServerError
		if isUnsupportedProtocol(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	gatewayHost := hostOnly(r.Host)
	target := fmt.Sprintf("%s://%s:%d", protocol, gatewayHost, port)

	if isTruthy(r.FormValue("redirect")) {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	writeJSON(w, http.StatusCreated, forwardResponse{
		Host:         host,
		Protocol:     protocol,
		ExternalPort: port,
		URL:          target,
	})
}

// handleMappings 映射集合的查询与删除
func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mappings, err := s.engine.Mappings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mappings": mappings})

	case http.MethodDelete:
		host := r.FormValue("host")
		protocol := r.FormValue("protocol")
		if host == "" || protocol == "" {
			writeError(w, http.StatusBadRequest, "host and protocol are required")
			return
		}
		if err := s.engine.Drop(r.Context(), host, protocol); err != nil {
			status := http.StatusNotFound
			if isUnsupportedProtocol(err) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// statusResponse /status 的响应
type statusResponse struct {
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Proxies       []types.ProxySnapshot `json:"proxies"`
	Bandwidth     types.BandwidthStats  `json:"bandwidth"`
	Accepted      int64                 `json:"accepted_total"`
}

// handleStatus 状态快照
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.statusSnapshot())
}

// handleHealthz 存活探针
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusSnapshot 构造状态响应
func (s *Server) statusSnapshot() statusResponse {
	s.mu.Lock()
	startTime := s.startTime
	s.mu.Unlock()

	resp := statusResponse{
		Proxies: s.engine.Status(),
	}
	if !startTime.IsZero() {
		resp.UptimeSeconds = int64(time.Since(startTime).Seconds())
	}
	if s.bw != nil {
		resp.Bandwidth = s.bw.Totals()
		resp.Accepted = s.bw.AcceptedTotal()
	}
	return resp
}

// ============================================================================
//                              辅助
// ============================================================================

// writeJSON 输出 JSON 响应
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("写响应失败", "err", err)
	}
}

// writeError 输出 JSON 错误响应
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// hostOnly 去掉 host:port 中的端口部分
func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

// isTruthy 解析布尔查询参数
func isTruthy(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// isUnsupportedProtocol 判断是否为不支持的协议错误
func isUnsupportedProtocol(err error) bool {
	return errors.Is(err, types.ErrUnsupportedProtocol)
}
