package portscan

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnectProxy 对每个 CONNECT 请求返回固定状态码
func fakeConnectProxy(t *testing.T, status int) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	targets := make(chan string, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				req, err := http.ReadRequest(bufio.NewReader(c))
				if err != nil {
					return
				}
				targets <- req.Host
				resp := &http.Response{StatusCode: status, ProtoMajor: 1, ProtoMinor: 1}
				_ = resp.Write(c)
			}(conn)
		}
	}()
	return ln.Addr().String(), targets
}

func TestNewProxyDialer_Invalid(t *testing.T) {
	for _, raw := range []string{"ftp://127.0.0.1:21", "socks5://", "://bad", "127.0.0.1:1080"} {
		_, err := NewProxyDialer(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "%s: %v", raw, err)
	}
}

func TestNewProxyDialer_Socks5(t *testing.T) {
	d, err := NewProxyDialer("socks5://127.0.0.1:1080")
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestHTTPProxyDialer_Connect(t *testing.T) {
	addr, targets := fakeConnectProxy(t, http.StatusOK)

	d, err := NewProxyDialer("http://" + addr)
	require.NoError(t, err)

	p := NewDialProber(d, nil)
	assert.True(t, p.Probe(context.Background(), "10.1.2.3", 8443, ProtocolTCP, time.Second))

	select {
	case got := <-targets:
		assert.Equal(t, "10.1.2.3:8443", got)
	case <-time.After(time.Second):
		t.Fatal("proxy never saw the CONNECT request")
	}
}

func TestHTTPProxyDialer_Refused(t *testing.T) {
	addr, _ := fakeConnectProxy(t, http.StatusBadGateway)

	d, err := NewProxyDialer("http://" + addr)
	require.NoError(t, err)

	p := NewDialProber(d, nil)
	assert.False(t, p.Probe(context.Background(), "10.1.2.3", 8443, ProtocolTCP, time.Second))
}

func TestHTTPProxyDialer_RejectsUDP(t *testing.T) {
	d, err := NewProxyDialer("http://127.0.0.1:3128")
	require.NoError(t, err)

	_, err = d.DialContext(context.Background(), "udp", "10.1.2.3:53")
	assert.Error(t, err)
}
