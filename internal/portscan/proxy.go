package portscan

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

// NewProxyDialer 根据代理地址创建 ContextDialer
// 支持 socks5:// 与 http:// (CONNECT), 代理只能承载 TCP
func NewProxyDialer(rawURL string) (ContextDialer, error) {
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "invalid proxy URL %q: %v", rawURL, err)
	}
	if proxyURL.Host == "" {
		return nil, errors.Wrapf(ErrInvalidConfig, "proxy URL %q has no host", rawURL)
	}

	switch proxyURL.Scheme {
	case "http":
		return &httpProxyDialer{proxyAddr: proxyURL.Host}, nil
	case "socks5", "socks5h":
		d, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "create proxy dialer: %v", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd, nil
		}
		return &contextDialerAdapter{d: d}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unsupported proxy scheme %q (valid: socks5, http)", proxyURL.Scheme)
	}
}

// contextDialerAdapter 让不支持 context 的 proxy.Dialer 也能被取消
type contextDialerAdapter struct {
	d proxy.Dialer
}

func (a *contextDialerAdapter) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type dialRes struct {
		c net.Conn
		e error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, e := a.d.Dial(network, address)
		ch <- dialRes{c, e}
	}()

	select {
	case res := <-ch:
		return res.c, res.e
	case <-ctx.Done():
		// 拨号完成后再关闭, 防止泄漏
		go func() {
			if res := <-ch; res.c != nil {
				_ = res.c.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

type httpProxyDialer struct {
	proxyAddr string
}

func (h *httpProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" {
		return nil, errors.Errorf("http proxy cannot carry %s", network)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", h.proxyAddr)
	if err != nil {
		return nil, err
	}
	// 握手阶段同样受 ctx 约束
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if err := req.Write(conn); err != nil {
		stop()
		conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		stop()
		conn.Close()
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		stop()
		conn.Close()
		return nil, errors.Errorf("proxy refused connection: %s", resp.Status)
	}
	if !stop() {
		// ctx 已结束, 连接已被关闭
		return nil, ctx.Err()
	}

	_ = conn.SetDeadline(time.Time{})
	return &bufferedConn{Conn: conn, r: br}, nil
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}
