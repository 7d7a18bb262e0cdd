package portscan

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// 端口号上限; PortEnd 为开区间, 因此允许取到 MaxPort+1
const MaxPort = 65535

// Protocol 定义探测使用的传输层协议, TCP 与 UDP 互斥
type Protocol int

const (
	ProtocolTCP Protocol = iota // TCP 全连接 (默认)
	ProtocolUDP                 // UDP connect, 信号较弱, 见 DialProber
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Network 返回 net.Dial 使用的网络名
func (p Protocol) Network() string {
	return p.String()
}

// IsValid 判断是否为已定义的协议
func (p Protocol) IsValid() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// ParseProtocol 将 "tcp" / "udp" (大小写不敏感) 转换为 Protocol
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	default:
		return 0, errors.Wrapf(ErrInvalidConfig, "unknown protocol %q (valid: tcp, udp)", s)
	}
}

// ScanConfig 单次扫描的配置, 由上层解析/校验后交给 Scanner
type ScanConfig struct {
	Target    string // 已解析的地址
	PortStart int
	PortEnd   int // 开区间
	Protocol  Protocol
	Timeout   time.Duration
	// Concurrency <= 0 表示不限制: 每个端口一个并发单元
	Concurrency int
}

// Validate 校验配置, 错误均包装 ErrInvalidConfig
func (c ScanConfig) Validate() error {
	if c.Target == "" {
		return errors.Wrap(ErrInvalidConfig, "target address is empty")
	}
	if !c.Protocol.IsValid() {
		return errors.Wrapf(ErrInvalidConfig, "invalid protocol %d", int(c.Protocol))
	}
	if c.Timeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "timeout must be positive, got %s", c.Timeout)
	}
	if c.PortStart < 1 || c.PortStart > MaxPort+1 {
		return errors.Wrapf(ErrInvalidConfig, "port start %d out of range (1-%d)", c.PortStart, MaxPort)
	}
	if c.PortEnd < c.PortStart || c.PortEnd > MaxPort+1 {
		return errors.Wrapf(ErrInvalidConfig, "port end %d out of range (%d-%d)", c.PortEnd, c.PortStart, MaxPort+1)
	}
	return nil
}

// NumPorts 返回 [PortStart, PortEnd) 中的端口数
func (c ScanConfig) NumPorts() int {
	if c.PortEnd < c.PortStart {
		return 0
	}
	return c.PortEnd - c.PortStart
}

// PortResult 单个端口的扫描结果
type PortResult struct {
	Port      int  `json:"port"`
	Reachable bool `json:"reachable"`
}

// ScanReport 按端口升序排列的结果, 每个端口一项
type ScanReport []PortResult

// OpenPorts 返回可达端口列表 (升序)
func (r ScanReport) OpenPorts() []int {
	var open []int
	for _, res := range r {
		if res.Reachable {
			open = append(open, res.Port)
		}
	}
	return open
}
