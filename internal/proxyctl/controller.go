// Package proxyctl manages the fronting Nginx process: start, stop,
// restart, status, and config test.
package proxyctl

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
)

// Config locates the proxy installation
type Config struct {
	BinaryPath  string
	ConfigPath  string
	ProcessName string
	ProbeURL    string
	StartupWait time.Duration
}

// DefaultConfig returns the conventional Nginx paths
func DefaultConfig() Config {
	return Config{
		BinaryPath:  "/usr/sbin/nginx",
		ConfigPath:  "/etc/nginx/nginx.conf",
		ProcessName: "nginx",
		ProbeURL:    "http://localhost/api/health",
		StartupWait: 2 * time.Second,
	}
}

// Proc is one live proxy process
type Proc interface {
	Pid() int32
	RSSBytes() uint64
	Kill() error
}

// Finder lists live processes by executable name
type Finder interface {
	Find(ctx context.Context, name string) ([]Proc, error)
}

// Runner executes proxy binary commands
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Controller drives the proxy process
type Controller struct {
	cfg    Config
	runner Runner
	finder Finder
	probe  *http.Client
	log    *logrus.Logger

	sleep func(time.Duration)
}

// New builds a controller with the real process table and command runner
func New(cfg Config, log *logrus.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		runner: execRunner{},
		finder: gopsutilFinder{},
		probe:  &http.Client{Timeout: 5 * time.Second},
		log:    log,
		sleep:  time.Sleep,
	}
}

// Start launches the proxy if it is not already running. Starting a
// running proxy is a no-op success.
func (c *Controller) Start(ctx context.Context) error {
	procs, err := c.finder.Find(ctx, c.cfg.ProcessName)
	if err != nil {
		return fmt.Errorf("failed to inspect process table: %w", err)
	}
	if len(procs) > 0 {
		c.log.WithField("pid", procs[0].Pid()).Info("proxy already running")
		return nil
	}

	if _, err := os.Stat(c.cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found at %s: %w", c.cfg.ConfigPath, err)
	}
	if _, err := os.Stat(c.cfg.BinaryPath); err != nil {
		return fmt.Errorf("binary not found at %s: %w", c.cfg.BinaryPath, err)
	}

	out, err := c.runner.Run(ctx, c.cfg.BinaryPath, "-c", c.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to launch proxy: %w: %s", err, strings.TrimSpace(string(out)))
	}

	c.sleep(c.cfg.StartupWait)

	procs, err = c.finder.Find(ctx, c.cfg.ProcessName)
	if err != nil {
		return fmt.Errorf("failed to inspect process table: %w", err)
	}
	if len(procs) == 0 {
		return fmt.Errorf("proxy did not come up after %s", c.cfg.StartupWait)
	}
	c.log.WithField("pid", procs[0].Pid()).Info("proxy started")
	return nil
}

// Stop shuts the proxy down, escalating from graceful quit to SIGKILL.
// Stopping an absent proxy is a no-op success.
func (c *Controller) Stop(ctx context.Context) error {
	procs, err := c.finder.Find(ctx, c.cfg.ProcessName)
	if err != nil {
		return fmt.Errorf("failed to inspect process table: %w", err)
	}
	if len(procs) == 0 {
		c.log.Info("proxy not running")
		return nil
	}

	if out, err := c.runner.Run(ctx, c.cfg.BinaryPath, "-s", "quit"); err != nil {
		c.log.WithError(err).WithField("output", strings.TrimSpace(string(out))).
			Warn("graceful quit failed, escalating")
	}
	c.sleep(c.cfg.StartupWait)

	procs, err = c.finder.Find(ctx, c.cfg.ProcessName)
	if err != nil {
		return fmt.Errorf("failed to inspect process table: %w", err)
	}
	for _, p := range procs {
		c.log.WithField("pid", p.Pid()).Warn("killing lingering proxy process")
		if err := p.Kill(); err != nil {
			return fmt.Errorf("failed to kill pid %d: %w", p.Pid(), err)
		}
	}

	c.sleep(c.cfg.StartupWait)
	procs, err = c.finder.Find(ctx, c.cfg.ProcessName)
	if err != nil {
		return fmt.Errorf("failed to inspect process table: %w", err)
	}
	if len(procs) > 0 {
		return fmt.Errorf("proxy still running after kill")
	}
	c.log.Info("proxy stopped")
	return nil
}

// Restart stops then starts the proxy, failing fast if the stop fails
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return fmt.Errorf("restart aborted, stop failed: %w", err)
	}
	return c.Start(ctx)
}

// Status is the diagnostic report
type Status struct {
	Running       bool    `json:"running"`
	PIDs          []int32 `json:"pids"`
	MemoryMB      float64 `json:"memory_mb"`
	BinaryPresent bool    `json:"binary_present"`
	ConfigPresent bool    `json:"config_present"`
	ProbeOK       bool    `json:"probe_ok"`
	ProbeStatus   int     `json:"probe_status,omitempty"`
}

// Status reports liveness, memory, file presence, and an HTTP probe of
// the proxied endpoint. Purely diagnostic.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	procs, err := c.finder.Find(ctx, c.cfg.ProcessName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process table: %w", err)
	}

	st := &Status{Running: len(procs) > 0}
	var rss uint64
	for _, p := range procs {
		st.PIDs = append(st.PIDs, p.Pid())
		rss += p.RSSBytes()
	}
	st.MemoryMB = float64(rss) / (1 << 20)

	if _, err := os.Stat(c.cfg.BinaryPath); err == nil {
		st.BinaryPresent = true
	}
	if _, err := os.Stat(c.cfg.ConfigPath); err == nil {
		st.ConfigPresent = true
	}

	if c.cfg.ProbeURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
		if err == nil {
			if resp, err := c.probe.Do(req); err == nil {
				resp.Body.Close()
				st.ProbeStatus = resp.StatusCode
				st.ProbeOK = resp.StatusCode == http.StatusOK
			}
		}
	}
	return st, nil
}

// Test runs the proxy's built-in config validator
func (c *Controller) Test(ctx context.Context) error {
	out, err := c.runner.Run(ctx, c.cfg.BinaryPath, "-t", "-c", c.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("config test failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	c.log.Info("proxy config test passed")
	return nil
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type gopsutilFinder struct{}

type gopsutilProc struct {
	p *process.Process
}

func (g gopsutilProc) Pid() int32 { return g.p.Pid }

func (g gopsutilProc) RSSBytes() uint64 {
	info, err := g.p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

func (g gopsutilProc) Kill() error { return g.p.Kill() }

func (gopsutilFinder) Find(ctx context.Context, name string) ([]Proc, error) {
	all, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var procs []Proc
	for _, p := range all {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if n == name {
			procs = append(procs, gopsutilProc{p: p})
		}
	}
	return procs, nil
}
