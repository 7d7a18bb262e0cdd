package portscan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Scanner 扫描协调器: 每个端口一个探测任务, 结果写入各自独立的槽位
type Scanner struct {
	prober Prober
	logger *zap.Logger
	onDone func(PortResult)
}

// Option 配置 Scanner
type Option func(*Scanner)

// WithProber 替换默认的 DialProber
func WithProber(p Prober) Option {
	return func(s *Scanner) { s.prober = p }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithResultHook 每个探测完成后回调, 会被并发调用
func WithResultHook(fn func(PortResult)) Option {
	return func(s *Scanner) { s.onDone = fn }
}

// NewScanner 创建一个新的扫描器实例
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.prober == nil {
		s.prober = NewDialProber(nil, s.logger)
	}
	return s
}

// Scan 扫描 [PortStart, PortEnd), 阻塞直到所有探测结束
// 返回的结果按端口升序; ctx 被取消时返回 ErrScanInterrupted, 不返回部分结果
func (s *Scanner) Scan(ctx context.Context, cfg ScanConfig) (ScanReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.NumPorts()
	// 槽位预分配, 第 i 个槽位固定对应 PortStart+i
	report := make(ScanReport, n)
	for i := range report {
		report[i].Port = cfg.PortStart + i
	}
	if n == 0 {
		return report, nil
	}

	// 修正并发数
	workers := cfg.Concurrency
	if workers <= 0 || workers > n {
		workers = n
	}

	log := s.logger.With(
		zap.String("target", cfg.Target),
		zap.Stringer("proto", cfg.Protocol),
	)
	log.Debug("scan started",
		zap.Int("start", cfg.PortStart),
		zap.Int("end", cfg.PortEnd),
		zap.Int("workers", workers),
		zap.Duration("timeout", cfg.Timeout),
	)
	startTime := time.Now()

	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)
	pool, err := ants.NewPoolWithFunc(workers, func(i interface{}) {
		defer wg.Done()
		idx := i.(int)

		// 已取消则不再发起连接
		if ctx.Err() != nil {
			return
		}
		// 每个任务只写自己的槽位, 无需加锁
		report[idx].Reachable = s.prober.Probe(ctx, cfg.Target, report[idx].Port, cfg.Protocol, cfg.Timeout)
		done.Add(1)

		if s.onDone != nil {
			s.onDone(report[idx])
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	for i := 0; i < n; i++ {
		// 检查上下文是否已取消（响应 Ctrl+C）
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Invoke(i); err != nil {
			wg.Done()
			wg.Wait()
			return nil, errors.Wrapf(err, "dispatch port %d", report[i].Port)
		}
	}

	// 等待所有正在进行的扫描任务完成
	wg.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("scan interrupted",
			zap.Int64("probed", done.Load()),
			zap.Int("total", n),
			zap.Duration("elapsed", time.Since(startTime)),
		)
		return nil, errors.Wrapf(ErrScanInterrupted, "%d/%d ports probed: %v", done.Load(), n, err)
	}

	log.Debug("scan completed",
		zap.Int("total", n),
		zap.Int("open", len(report.OpenPorts())),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return report, nil
}
