package cli

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/glockie029/portsweep/internal/config"
	"github.com/glockie029/portsweep/internal/portscan"
	"github.com/glockie029/portsweep/internal/resolver"
)

// ExitCode 进程退出码, 供脚本区分失败原因
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitGeneralError ExitCode = 1
	ExitConfigError  ExitCode = 2 // 参数/配置错误, 扫描未开始
	ExitResolveError ExitCode = 3 // 目标无法解析
	ExitInterrupted  ExitCode = 130
)

// CLIError 携带退出码的错误
type CLIError struct {
	Code    ExitCode
	Message string
	Err     error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// classify 将各层错误映射为 CLIError
func classify(err error) *CLIError {
	var cliErr *CLIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cliErr):
		return cliErr
	case errors.Is(err, config.ErrInvalid), errors.Is(err, portscan.ErrInvalidConfig):
		return &CLIError{Code: ExitConfigError, Message: "invalid configuration", Err: err}
	case errors.Is(err, resolver.ErrUnresolvable):
		return &CLIError{Code: ExitResolveError, Message: "could not resolve target", Err: err}
	case errors.Is(err, portscan.ErrScanInterrupted):
		return &CLIError{Code: ExitInterrupted, Message: "scan aborted", Err: err}
	default:
		return &CLIError{Code: ExitGeneralError, Message: "scan failed", Err: err}
	}
}
