package portscan

import "github.com/pkg/errors"

var (
	// ErrInvalidConfig 配置错误, 扫描不会开始
	ErrInvalidConfig = errors.New("invalid scan config")

	// ErrScanInterrupted 扫描被取消, 部分结果被丢弃
	ErrScanInterrupted = errors.New("scan interrupted")
)
