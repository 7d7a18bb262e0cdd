package portscan

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Prober 对单个端口做一次连接探测
// 网络层面的失败 (超时/拒绝/不可达) 全部体现为 false, 不返回错误
type Prober interface {
	Probe(ctx context.Context, host string, port int, proto Protocol, timeout time.Duration) bool
}

// ContextDialer 与 net.Dialer / proxy.ContextDialer 兼容
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialProber 通过 DialContext 实现 Prober
//
// TCP: 三次握手在超时内完成即视为可达.
// UDP: 只是一次无连接的 connect(2), 内核接受路由即返回成功, 并不代表对端有服务监听.
// 这是一个弱信号, 不能与 TCP 的结果等同看待.
type DialProber struct {
	dialer ContextDialer
	logger *zap.Logger
}

// NewDialProber 创建探测器, dialer 为 nil 时直接连接
func NewDialProber(dialer ContextDialer, logger *zap.Logger) *DialProber {
	if dialer == nil {
		dialer = &net.Dialer{
			KeepAlive: -1, // 扫描不需要保持连接
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DialProber{dialer: dialer, logger: logger}
}

// Probe 单个端口探测, 成功建立的连接会立即关闭
func (p *DialProber) Probe(ctx context.Context, host string, port int, proto Protocol, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := p.dialer.DialContext(ctx, proto.Network(), address)
	if err != nil {
		if ce := p.logger.Check(zap.DebugLevel, "probe failed"); ce != nil {
			ce.Write(
				zap.String("addr", address),
				zap.Stringer("proto", proto),
				zap.String("reason", classifyDialError(err)),
				zap.Error(err),
			)
		}
		return false
	}
	_ = conn.Close()
	return true
}

// classifyDialError 仅用于日志, 结果本身不区分 closed / filtered
func classifyDialError(err error) string {
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "refused"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return "unreachable"
	default:
		return "error"
	}
}
