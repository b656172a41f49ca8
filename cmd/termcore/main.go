package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	terminal "github.com/ulic-youthlic/neomacs-term"
	"github.com/ulic-youthlic/neomacs-term/internal/server"
)

type fileConfig struct {
	Addr                 string `yaml:"addr"`
	LogLevel             string `yaml:"log_level"`
	FrameIntervalMs      int    `yaml:"frame_interval_ms"`
	Shell                string `yaml:"shell"`
	HistorySize          int    `yaml:"history_size"`
	DefaultForeground    string `yaml:"default_foreground"`
	DefaultBackground    string `yaml:"default_background"`
	InputRateBytesPerSec int    `yaml:"input_rate_bytes_per_sec"`
	InputBurstBytes      int    `yaml:"input_burst_bytes"`
}

func main() {
	var addr string
	var configPath string
	var logLevel string
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides config file)")
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config file)")
	flag.Parse()

	var cfg fileConfig
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to read config %s: %v\n", configPath, err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to parse config %s: %v\n", configPath, err)
			os.Exit(1)
		}
	}

	if addr == "" {
		addr = cfg.Addr
	}
	if addr == "" {
		addr = ":8080"
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}

	logger := terminal.NewStdLogger(parseLogLevel(logLevel))

	managerCfg := terminal.ManagerConfig{
		Logger:            logger,
		HistoryBufferSize: cfg.HistorySize,
	}
	if cfg.Shell != "" {
		managerCfg.ShellResolver = terminal.StaticShellResolver{Shell: cfg.Shell}
	}
	if cfg.DefaultForeground != "" {
		if c, err := colorful.Hex(cfg.DefaultForeground); err == nil {
			managerCfg.DefaultForeground = c
		} else {
			logger.Warn("Invalid default_foreground, using default", "value", cfg.DefaultForeground)
		}
	}
	if cfg.DefaultBackground != "" {
		if c, err := colorful.Hex(cfg.DefaultBackground); err == nil {
			managerCfg.DefaultBackground = c
		} else {
			logger.Warn("Invalid default_background, using default", "value", cfg.DefaultBackground)
		}
	}

	srv := server.New(server.Config{
		FrameInterval:        time.Duration(cfg.FrameIntervalMs) * time.Millisecond,
		InputRateBytesPerSec: cfg.InputRateBytesPerSec,
		InputBurstBytes:      cfg.InputBurstBytes,
		ManagerConfig:        managerCfg,
	})
	defer srv.Close()

	logger.Info("termcore server listening", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		logger.Error("http server exited", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(raw string) terminal.LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return terminal.LogDebug
	case "info", "":
		return terminal.LogInfo
	case "warn", "warning":
		return terminal.LogWarn
	case "error":
		return terminal.LogError
	default:
		fmt.Fprintf(os.Stderr, "warning: unknown log level %q, falling back to info\n", raw)
		return terminal.LogInfo
	}
}
