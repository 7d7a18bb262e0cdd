package portscan

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialProber_TCPOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	p := NewDialProber(nil, nil)
	assert.True(t, p.Probe(context.Background(), "127.0.0.1", port, ProtocolTCP, time.Second))
}

func TestDialProber_TCPClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	p := NewDialProber(nil, nil)
	assert.False(t, p.Probe(context.Background(), "127.0.0.1", port, ProtocolTCP, 500*time.Millisecond))
}

// UDP connect 不发送任何数据, 即使没有监听者也会成功
func TestDialProber_UDPIsWeakSignal(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	port := pc.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, pc.Close())

	p := NewDialProber(nil, nil)
	assert.True(t, p.Probe(context.Background(), "127.0.0.1", port, ProtocolUDP, time.Second),
		"udp connect succeeds without a listener")
}

// blockingDialer 一直阻塞到 ctx 结束
type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDialProber_TimeoutIsNotReachable(t *testing.T) {
	p := NewDialProber(blockingDialer{}, nil)

	start := time.Now()
	ok := p.Probe(context.Background(), "192.0.2.1", 80, ProtocolTCP, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestDialProber_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewDialProber(blockingDialer{}, nil)
	assert.False(t, p.Probe(ctx, "192.0.2.1", 80, ProtocolTCP, time.Minute))
}

type trackingConn struct {
	net.Conn
	closed *atomic.Int64
}

func (c *trackingConn) Close() error {
	c.closed.Add(1)
	return c.Conn.Close()
}

type trackingDialer struct {
	network string
	address string
	closed  atomic.Int64
}

func (d *trackingDialer) DialContext(_ context.Context, network, address string) (net.Conn, error) {
	d.network, d.address = network, address
	client, server := net.Pipe()
	_ = server.Close()
	return &trackingConn{Conn: client, closed: &d.closed}, nil
}

func TestDialProber_ClosesEndpoint(t *testing.T) {
	d := &trackingDialer{}
	p := NewDialProber(d, nil)

	require.True(t, p.Probe(context.Background(), "10.0.0.1", 8080, ProtocolUDP, time.Second))
	assert.EqualValues(t, 1, d.closed.Load())
	assert.Equal(t, "udp", d.network)
	assert.Equal(t, "10.0.0.1:8080", d.address)
}

func TestDialProber_IPv6Address(t *testing.T) {
	d := &trackingDialer{}
	p := NewDialProber(d, nil)

	require.True(t, p.Probe(context.Background(), "::1", 22, ProtocolTCP, time.Second))
	assert.Equal(t, "[::1]:22", d.address)
}

func TestClassifyDialError(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	unreach := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}

	cases := []struct {
		err  error
		want string
	}{
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("dial: %w", context.DeadlineExceeded), "timeout"},
		{refused, "refused"},
		{unreach, "unreachable"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyDialError(tc.err), "err=%v", tc.err)
	}
}
