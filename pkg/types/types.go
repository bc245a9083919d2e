// Package types 定义 portgate 的公共数据类型
//
// 这些类型在存储、代理注册表、引擎和网关之间共享，
// 不依赖任何内部实现包。
package types

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
//                              协议
// ============================================================================

// Protocol 转发协议枚举
//
// 协议决定目标主机上的内部端口（ssh→22, telnet→23, http→80, https→443）。
type Protocol string

const (
	// ProtocolSSH SSH 协议
	ProtocolSSH Protocol = "ssh"
	// ProtocolTelnet Telnet 协议
	ProtocolTelnet Protocol = "telnet"
	// ProtocolHTTP HTTP 协议
	ProtocolHTTP Protocol = "http"
	// ProtocolHTTPS HTTPS 协议
	ProtocolHTTPS Protocol = "https"
)

// internalPorts 协议到内部端口的固定映射表
var internalPorts = map[Protocol]int{
	ProtocolSSH:    22,
	ProtocolTelnet: 23,
	ProtocolHTTP:   80,
	ProtocolHTTPS:  443,
}

// ParseProtocol 解析协议字符串
//
// 输入在边界处统一转为小写；不认识的协议返回 ErrUnsupportedProtocol，
// 调用方必须在任何端口分配之前完成该校验。
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := internalPorts[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
	}
	return p, nil
}

// Valid 检查协议是否受支持
func (p Protocol) Valid() bool {
	_, ok := internalPorts[p]
	return ok
}

// InternalPort 返回协议对应的目标内部端口
//
// 不受支持的协议返回 0 和 false。
func (p Protocol) InternalPort() (int, bool) {
	port, ok := internalPorts[p]
	return port, ok
}

// String 返回协议的字符串表示
func (p Protocol) String() string {
	return string(p)
}

// ============================================================================
//                              映射
// ============================================================================

// Mapping 一条持久化的端口映射记录
//
// 键是 (Host, Protocol) 对；ExternalPort 在整个存储中唯一，
// 且在映射的生命周期内不变。内部端口由协议推导，不落盘。
type Mapping struct {
	// Host 远端目标主机
	Host string `json:"host"`

	// Protocol 转发协议
	Protocol Protocol `json:"protocol"`

	// ExternalPort 本地绑定的外部端口
	ExternalPort int `json:"port"`
}

// Key 返回映射的存储键（host|protocol）
func (m Mapping) Key() string {
	return MappingKey(m.Host, m.Protocol)
}

// InternalPort 返回映射目标上的内部端口
func (m Mapping) InternalPort() int {
	port, _ := m.Protocol.InternalPort()
	return port
}

// MappingKey 构造 (host, protocol) 对的存储键
func MappingKey(host string, protocol Protocol) string {
	return host + "|" + string(protocol)
}

// ============================================================================
//                              代理状态
// ============================================================================

// ProxyState 单个外部端口的监听器状态
type ProxyState int

const (
	// StateAbsent 无监听器
	StateAbsent ProxyState = iota
	// StateStarting 正在绑定
	StateStarting
	// StateRunning 接受循环运行中
	StateRunning
	// StateStopping 正在停止
	StateStopping
)

// String 返回状态的字符串表示
func (s ProxyState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalJSON 实现 json.Marshaler 接口
func (s ProxyState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ============================================================================
//                              快照
// ============================================================================

// ConnSnapshot 单个转发连接配对的只读快照
type ConnSnapshot struct {
	// ID 配对的唯一标识
	ID string `json:"id"`

	// ClientAddr 客户端远端地址
	ClientAddr string `json:"client_addr"`

	// OpenedAt 配对建立时间
	OpenedAt time.Time `json:"opened_at"`

	// ClosedAt 配对关闭时间（仍活跃时为零值）
	ClosedAt time.Time `json:"closed_at,omitempty"`

	// BytesIn 远端→客户端方向转发的字节数
	BytesIn int64 `json:"bytes_in"`

	// BytesOut 客户端→远端方向转发的字节数
	BytesOut int64 `json:"bytes_out"`
}

// ProxySnapshot 单个活跃代理的只读快照
//
// 由状态查询接口消费，读取时不得修改注册表状态。
type ProxySnapshot struct {
	// ExternalPort 本地绑定端口
	ExternalPort int `json:"external_port"`

	// RemoteHost 转发目标主机
	RemoteHost string `json:"remote_host"`

	// RemotePort 转发目标端口
	RemotePort int `json:"remote_port"`

	// State 当前生命周期状态
	State ProxyState `json:"state"`

	// ActiveConns 当前活跃的转发连接数
	ActiveConns int `json:"active_conns"`

	// BytesIn 该端口累计入站字节数（远端→客户端）
	BytesIn int64 `json:"bytes_in"`

	// BytesOut 该端口累计出站字节数（客户端→远端）
	BytesOut int64 `json:"bytes_out"`

	// Conns 活跃连接快照
	Conns []ConnSnapshot `json:"conns,omitempty"`

	// History 最近关闭的连接快照（有界环）
	History []ConnSnapshot `json:"history,omitempty"`
}

// BandwidthStats 带宽统计快照
type BandwidthStats struct {
	// TotalIn 累计入站字节数
	TotalIn int64 `json:"total_in"`

	// TotalOut 累计出站字节数
	TotalOut int64 `json:"total_out"`

	// RateIn 入站速率（字节/秒）
	RateIn float64 `json:"rate_in"`

	// RateOut 出站速率（字节/秒）
	RateOut float64 `json:"rate_out"`
}

// BootstrapSummary 启动恢复的结果汇总
type BootstrapSummary struct {
	// Started 成功启动的监听器数量
	Started int `json:"started"`

	// Skipped 因协议不识别被跳过的记录数量
	Skipped int `json:"skipped"`

	// Failed 启动失败的映射数量
	Failed int `json:"failed"`
}
