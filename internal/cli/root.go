// Package cli 实现 portsweep 的命令行入口: 参数/配置解析, 目标解析, 扫描与输出
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/xid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glockie029/portsweep/internal/config"
	"github.com/glockie029/portsweep/internal/logger"
	"github.com/glockie029/portsweep/internal/portscan"
	"github.com/glockie029/portsweep/internal/report"
	"github.com/glockie029/portsweep/internal/resolver"
)

// 构建信息, 由 main 通过 ldflags 注入
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// app 持有命令运行所需的依赖, 测试中可替换
type app struct {
	stdout io.Writer
	stderr io.Writer
	prober portscan.Prober     // nil 时使用 DialProber
	lookup resolver.LookupFunc // nil 时使用系统解析

	configPath string
	timeout    string
	flags      config.Options
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{stdout: os.Stdout, stderr: os.Stderr})
}

func newRootCommand(a *app) *cobra.Command {
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "portsweep [flags] <target>",
		Short: "Concurrent TCP/UDP port reachability scanner",
		Long: `portsweep resolves a host name or IP address and probes a range of ports
concurrently, one connection attempt per port, then prints the reachable ports
in ascending order.

A timeout and a refused connection are both reported as "not reachable".
UDP results are a weak signal: a UDP connect only checks that the local stack
accepts the route, it does not prove that anything is listening.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return &CLIError{Code: ExitConfigError, Message: fmt.Sprintf("expected one target, got %d", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&a.flags.TCP, "tcp", "t", false, "scan TCP ports (default)")
	f.BoolVarP(&a.flags.UDP, "udp", "u", false, "scan UDP ports (weak signal, see help)")
	f.StringVar(&a.flags.Protocol, "protocol", def.Protocol, "protocol to scan: tcp|udp")
	f.IntVarP(&a.flags.StartPort, "start", "s", def.StartPort, "first port to scan")
	f.IntVarP(&a.flags.EndPort, "end", "e", def.EndPort, "last port to scan (inclusive)")
	f.StringVarP(&a.timeout, "timeout", "w", def.Timeout.String(), "per-port timeout, a duration or whole seconds")
	f.IntVarP(&a.flags.Concurrency, "concurrency", "c", def.Concurrency, "max probes in flight, 0 = one per port")
	f.StringVarP(&a.flags.Mode, "mode", "m", def.Mode, "target resolution: auto|ip|name")
	f.StringVar(&a.flags.Proxy, "proxy", "", "dial TCP probes through socks5:// or http:// proxy")
	f.StringVar(&a.configPath, "config", "", "YAML or JSONC config file")
	f.BoolVar(&a.flags.JSON, "json", false, "print the result as JSON")
	f.BoolVarP(&a.flags.Verbose, "verbose", "v", false, "debug logging")
	f.StringVar(&a.flags.LogFile, "log-file", "", "also write logs to this file (rotated)")
	f.BoolVar(&a.flags.NoProgress, "no-progress", false, "hide the progress bar")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &CLIError{Code: ExitConfigError, Message: "invalid flags", Err: err}
	})
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// options 合并 默认值 -> 配置文件 -> 命令行显式指定的参数
func (a *app) options(cmd *cobra.Command, args []string) (config.Options, error) {
	o := config.Default()
	if a.configPath != "" {
		if err := config.LoadFile(a.configPath, &o); err != nil {
			return o, err
		}
	}

	f := cmd.Flags()
	if f.Changed("tcp") {
		o.TCP = a.flags.TCP
	}
	if f.Changed("udp") {
		o.UDP = a.flags.UDP
	}
	if f.Changed("protocol") {
		o.Protocol = a.flags.Protocol
	}
	if f.Changed("start") {
		o.StartPort = a.flags.StartPort
	}
	if f.Changed("end") {
		o.EndPort = a.flags.EndPort
	}
	if f.Changed("timeout") {
		d, err := config.ParseTimeout(a.timeout)
		if err != nil {
			return o, err
		}
		o.Timeout = d
	}
	if f.Changed("concurrency") {
		o.Concurrency = a.flags.Concurrency
	}
	if f.Changed("mode") {
		o.Mode = a.flags.Mode
	}
	if f.Changed("proxy") {
		o.Proxy = a.flags.Proxy
	}
	if f.Changed("log-file") {
		o.LogFile = a.flags.LogFile
	}
	o.JSON = a.flags.JSON
	o.Verbose = a.flags.Verbose
	o.NoProgress = a.flags.NoProgress

	if len(args) == 1 {
		o.Target = args[0]
	}
	return o, nil
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	opts, err := a.options(cmd, args)
	if err != nil {
		return classify(err)
	}
	// 配置错误在任何网络活动之前返回
	if err := opts.Validate(); err != nil {
		return classify(err)
	}

	scanID := xid.New().String()
	log := logger.New(logger.Options{Verbose: opts.Verbose, File: opts.LogFile, Console: a.stderr}).
		With(zap.String("scan_id", scanID))
	defer func() { _ = log.Sync() }()

	// Ctrl+C / SIGTERM 取消扫描
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, _ := resolver.ParseMode(opts.Mode)
	address, err := resolver.New(a.lookup).Resolve(ctx, opts.Target, mode)
	if err != nil {
		return classify(err)
	}
	cfg, err := opts.ScanConfig(address)
	if err != nil {
		return classify(err)
	}

	prober := a.prober
	if prober == nil {
		var dialer portscan.ContextDialer
		if opts.Proxy != "" {
			if dialer, err = portscan.NewProxyDialer(opts.Proxy); err != nil {
				return classify(err)
			}
		}
		prober = portscan.NewDialProber(dialer, log)
	}

	if !opts.JSON {
		info := color.New(color.FgCyan)
		info.Fprintf(a.stderr, "--- 开始扫描 %s (%s) [端口 %d-%d] ---\n", opts.Target, address, opts.StartPort, opts.EndPort)
		info.Fprintf(a.stderr, "--- 协议: %s | 并发数: %s | 超时: %s ---\n", cfg.Protocol, concurrencyLabel(cfg), cfg.Timeout)
	}

	scanOpts := []portscan.Option{
		portscan.WithProber(prober),
		portscan.WithLogger(log),
	}
	var bar *progressbar.ProgressBar
	if !opts.JSON && !opts.NoProgress && cfg.NumPorts() > 0 {
		bar = a.newProgressBar(cfg.NumPorts())
		scanOpts = append(scanOpts, portscan.WithResultHook(func(portscan.PortResult) {
			_ = bar.Add(1)
		}))
	}

	startTime := time.Now()
	rep, err := portscan.NewScanner(scanOpts...).Scan(ctx, cfg)
	elapsed := time.Since(startTime)
	if bar != nil {
		if err != nil {
			_ = bar.Clear()
		} else {
			_ = bar.Finish()
		}
		fmt.Fprintln(a.stderr)
	}
	if err != nil {
		return classify(err)
	}

	summary := report.Summary{
		ScanID:  scanID,
		Target:  opts.Target,
		Address: address,
		Config:  cfg,
		Report:  rep,
		Elapsed: elapsed,
	}
	if opts.JSON {
		return report.JSON(a.stdout, summary)
	}
	return report.Text(a.stdout, summary)
}

func (a *app) newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(a.stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan][扫描中][reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func concurrencyLabel(cfg portscan.ScanConfig) string {
	if cfg.Concurrency <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(cfg.Concurrency)
}

// Execute 运行根命令, 按错误类型设置退出码
func Execute(cmd *cobra.Command) {
	err := cmd.Execute()
	if err == nil {
		return
	}
	cliErr := classify(err)
	jsonOut, _ := cmd.Flags().GetBool("json")
	printError(os.Stderr, cliErr, jsonOut)
	os.Exit(int(cliErr.Code))
}

// printError 输出错误, --json 时输出 JSON
func printError(w io.Writer, e *CLIError, jsonOut bool) {
	if jsonOut {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"code":    int(e.Code),
				"message": e.Message,
			},
		}
		if e.Err != nil {
			errObj["error"].(map[string]interface{})["detail"] = e.Err.Error()
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	color.New(color.FgRed).Fprintf(w, "[-]Error: %s\n", e.Error())
}
