// Package logparser is the library entry point: it searches the logs of a
// set of remote hosts without going through the command line.
package logparser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/liliang-cn/logparser/pkg/config"
	"github.com/liliang-cn/logparser/pkg/hostfeed"
	"github.com/liliang-cn/logparser/pkg/logger"
	"github.com/liliang-cn/logparser/pkg/report"
	"github.com/liliang-cn/logparser/pkg/search"
	logssh "github.com/liliang-cn/logparser/pkg/ssh"
)

// Client 是主客户端，既可以作为 CLI 使用，也可以作为库使用
type Client struct {
	settings  *config.File
	transport search.Transport
	logger    *logger.Logger
	mu        sync.Mutex
}

// Config 创建客户端的配置
type Config struct {
	ConfigPath string        // 配置文件路径，空则使用默认
	SSH        *SSHConfig    // SSH 默认配置
	Search     *SearchConfig // 搜索默认配置
}

// SSHConfig SSH 配置
type SSHConfig struct {
	User           string
	Port           int
	KeyPath        string
	Timeout        int // 秒
	KnownHostsPath string
	StrictHostKey  bool
}

// SearchConfig 搜索配置
type SearchConfig struct {
	Dir      string
	Parallel int
}

// New 创建新的客户端
func New(cfg *Config) (*Client, error) {
	configPath := ""
	if cfg != nil {
		configPath = cfg.ConfigPath
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	file := *settings.File()

	// 如果提供了配置，覆盖默认值
	if cfg != nil && cfg.SSH != nil {
		if cfg.SSH.User != "" {
			file.SSH.User = cfg.SSH.User
		}
		if cfg.SSH.Port > 0 {
			file.SSH.Port = cfg.SSH.Port
		}
		if cfg.SSH.KeyPath != "" {
			file.SSH.KeyPath = cfg.SSH.KeyPath
		}
		if cfg.SSH.Timeout > 0 {
			file.SSH.Timeout = fmt.Sprintf("%ds", cfg.SSH.Timeout)
		}
		if cfg.SSH.KnownHostsPath != "" {
			file.SSH.KnownHostsPath = cfg.SSH.KnownHostsPath
		}
		if cfg.SSH.StrictHostKey {
			file.SSH.StrictHostKey = true
		}
	}

	if cfg != nil && cfg.Search != nil {
		if cfg.Search.Dir != "" {
			file.Search.Dir = cfg.Search.Dir
		}
		if cfg.Search.Parallel > 0 {
			file.Search.Parallel = cfg.Search.Parallel
		}
	}

	if _, err := file.DialTimeout(); err != nil {
		return nil, err
	}

	return &Client{
		settings: &file,
		logger:   logger.Discard(),
	}, nil
}

// NewWithTransport 使用已有的 transport 创建客户端
func NewWithTransport(t search.Transport, file *config.File) *Client {
	if file == nil {
		file = config.Defaults()
	}
	return &Client{
		settings:  file,
		transport: t,
		logger:    logger.Discard(),
	}
}

// SetLogger sets custom logger
func (c *Client) SetLogger(l *logger.Logger) {
	c.logger = l
}

// Settings returns the resolved settings.
func (c *Client) Settings() *config.File {
	return c.settings
}

// getTransport 懒加载 SSH transport
func (c *Client) getTransport() (search.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		return c.transport, nil
	}

	timeout, _ := c.settings.DialTimeout()
	sshCfg := c.settings.SSH
	client, err := logssh.NewClient(sshCfg.KeyPath,
		logssh.WithKnownHosts(sshCfg.KnownHostsPath),
		logssh.WithStrictHostKey(sshCfg.StrictHostKey),
		logssh.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH client: %w", err)
	}

	c.transport = &search.SSHTransport{
		Client:  client,
		Port:    sshCfg.Port,
		KeyPath: sshCfg.KeyPath,
		UserSet: sshCfg.User != "",
		PortSet: sshCfg.Port != 0 && sshCfg.Port != 22,
	}
	return c.transport, nil
}

// Search 在指定主机上搜索日志
func (c *Client) Search(ctx context.Context, hosts []string, term string, opts ...SearchOption) (*Result, error) {
	options := &searchOptions{
		user:     c.settings.SSH.User,
		dir:      c.settings.Search.Dir,
		parallel: c.settings.Search.Parallel,
		output:   io.Discard,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.user == "" {
		options.user = config.CurrentUser()
	}

	pattern, err := config.CompilePattern(term, options.ignoreCase)
	if err != nil {
		return nil, err
	}

	transport, err := c.getTransport()
	if err != nil {
		return nil, err
	}

	s := search.New(transport, term, pattern, search.Options{
		User:     options.user,
		Dir:      options.dir,
		Execute:  options.execute,
		Verbose:  options.verbose,
		Parallel: options.parallel,
	})
	s.SetOutput(options.output)
	s.SetLogger(c.logger)
	if options.progress != nil {
		s.OnProgress(options.progress)
	}

	result := &Result{
		Term:      term,
		StartTime: time.Now(),
	}
	rep, err := s.Run(ctx, hostfeed.FromList(hosts))
	result.EndTime = time.Now()
	result.Report = rep
	return result, err
}

// Result 搜索结果
type Result struct {
	Term      string
	Report    *report.Report
	StartTime time.Time
	EndTime   time.Time
}

// Summary returns the aggregate counts.
func (r *Result) Summary() report.Summary {
	return r.Report.Summary()
}

// Matches returns the matching lines of host, keyed by file.
func (r *Result) Matches(host string) map[string][]report.Match {
	out := make(map[string][]report.Match)
	for _, f := range r.Report.Files(r.Term, host) {
		ms, _ := r.Report.Matches(r.Term, host, f)
		out[f] = ms
	}
	return out
}

// UnreachableHosts returns the hosts that could not be searched.
func (r *Result) UnreachableHosts() []string {
	return r.Report.Unreachable()
}

// AllReachable 检查是否所有主机都可达
func (r *Result) AllReachable() bool {
	return len(r.Report.Unreachable()) == 0
}

// Duration returns how long the search took.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Print writes the report to w.
func (r *Result) Print(w io.Writer, verbose bool) error {
	return report.Print(w, r.Report, r.Term, verbose)
}
