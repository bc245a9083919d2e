package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/core/bandwidth"
	"github.com/portgate/go-portgate/internal/core/engine"
	"github.com/portgate/go-portgate/internal/core/forward"
	"github.com/portgate/go-portgate/internal/core/mapping"
	"github.com/portgate/go-portgate/internal/core/proxy"
)

// newTestServer 启动一个带真实引擎的网关
func newTestServer(t *testing.T) *Server {
	t.Helper()

	// 起始端口取一个当前空闲的本地端口
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	startPort := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := config.NewConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "port_mappings.json")
	cfg.Store.StartPort = startPort
	cfg.Proxy.ListenHost = "127.0.0.1"
	cfg.Gateway.Addr = "127.0.0.1:0"
	cfg.Gateway.WSPushInterval = config.Duration(50 * time.Millisecond)

	store := mapping.NewFileStore(cfg.Store)
	bw := bandwidth.NewCounter(cfg.Bandwidth, clock.New())
	fwd := forward.New(cfg.Forward, bw)
	reg := proxy.NewRegistry(cfg.Proxy, fwd, bw)
	eng := engine.New(store, reg)

	srv := New(cfg.Gateway, eng, bw)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		_ = reg.StopAll()
	})
	return srv
}

func get(t *testing.T, srv *Server, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get("http://" + srv.Addr() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// TestForwardEndpoint 请求转发返回外部端口与 URL
func TestForwardEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv, "/forward?host=a.example.com&protocol=ssh")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Host         string `json:"host"`
		Protocol     string `json:"protocol"`
		ExternalPort int    `json:"external_port"`
		URL          string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "a.example.com", out.Host)
	assert.Equal(t, "ssh", out.Protocol)
	assert.Greater(t, out.ExternalPort, 0)
	assert.Equal(t, fmt.Sprintf("ssh://127.0.0.1:%d", out.ExternalPort), out.URL)
}

// TestForwardEndpoint_IPAlias ip 参数名兼容
func TestForwardEndpoint_IPAlias(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := get(t, srv, "/forward?ip=a.example.com&protocol=http")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

// TestForwardEndpoint_Unsupported 不支持的协议返回 400
func TestForwardEndpoint_Unsupported(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv, "/forward?host=a.example.com&protocol=ftp")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "unsupported protocol")

	// 无副作用
	resp, body = get(t, srv, "/mappings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Mappings []any `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Empty(t, out.Mappings)
}

// TestForwardEndpoint_MissingParams 缺少参数返回 400
func TestForwardEndpoint_MissingParams(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := get(t, srv, "/forward?protocol=ssh")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, srv, "/forward?host=a.example.com")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestForwardEndpoint_Redirect redirect=1 时跳转到转发地址
func TestForwardEndpoint_Redirect(t *testing.T) {
	srv := newTestServer(t)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get("http://" + srv.Addr() + "/forward?host=a.example.com&protocol=http&redirect=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	loc := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, "http://127.0.0.1:"), loc)
}

// TestMappingsEndpoint 映射查询与删除
func TestMappingsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := get(t, srv, "/forward?host=a.example.com&protocol=ssh")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := get(t, srv, "/mappings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Mappings []struct {
			Host     string `json:"host"`
			Protocol string `json:"protocol"`
			Port     int    `json:"port"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Mappings, 1)
	assert.Equal(t, "a.example.com", out.Mappings[0].Host)

	// 删除
	req, err := http.NewRequest(http.MethodDelete,
		"http://"+srv.Addr()+"/mappings?host=a.example.com&protocol=ssh", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	// 再次删除：404
	delResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, delResp.StatusCode)
}

// TestStatusEndpoint 状态快照包含代理列表
func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := get(t, srv, "/forward?host=a.example.com&protocol=https")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := get(t, srv, "/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Proxies []struct {
			ExternalPort int    `json:"external_port"`
			RemoteHost   string `json:"remote_host"`
			RemotePort   int    `json:"remote_port"`
			State        string `json:"state"`
		} `json:"proxies"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Proxies, 1)
	assert.Equal(t, "a.example.com", out.Proxies[0].RemoteHost)
	assert.Equal(t, 443, out.Proxies[0].RemotePort)
	assert.Equal(t, "running", out.Proxies[0].State)
}

// TestHealthzEndpoint 存活探针
func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"ok"`)
}

// TestMetricsEndpoint Prometheus 指标暴露
func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := get(t, srv, "/forward?host=a.example.com&protocol=ssh")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.Contains(t, text, "portgate_active_proxies 1")
	assert.Contains(t, text, "portgate_connections_accepted_total")
	assert.Contains(t, text, `portgate_relayed_bytes_total{direction="in"}`)
}

// TestWSStatus WebSocket 状态推送
func TestWSStatus(t *testing.T) {
	srv := newTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws/status", nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var snapshot struct {
		Proxies []any `json:"proxies"`
	}
	// 建立后立即收到一帧
	require.NoError(t, conn.ReadJSON(&snapshot))
	// 随后按间隔推送
	require.NoError(t, conn.ReadJSON(&snapshot))
}
