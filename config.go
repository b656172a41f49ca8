package terminal

import "github.com/lucasb-eyer/go-colorful"

// ManagerConfig defines defaults used for all sessions created by a manager.
type ManagerConfig struct {
	Logger            Logger
	EnvProvider       ShellEnvProvider
	ShellResolver     ShellResolver
	ShellArgsProvider ShellArgsProvider
	HistoryBufferSize int
	TerminalEnv       TerminalEnv

	// DefaultForeground and DefaultBackground are the concrete colors that
	// semantic foreground/background cells resolve to in extracted content.
	// A zero foreground becomes white; black is a valid zero background.
	DefaultForeground colorful.Color
	DefaultBackground colorful.Color

	// Events receives title, bell and process-exit notifications for every
	// session. Content-change wakeups are not delivered here; they are polled
	// through UpdateAll. The sink is called from session reader goroutines and
	// must not block.
	Events EventSink
}

// TerminalEnv defines environment variables applied to every PTY session.
type TerminalEnv struct {
	Term               string
	ColorTerm          string
	Lang               string
	TermProgram        string
	TermProgramVersion string
}

// DefaultTerminalEnv returns a baseline environment configuration.
func DefaultTerminalEnv() TerminalEnv {
	return TerminalEnv{
		Term:               "xterm-256color",
		ColorTerm:          "truecolor",
		Lang:               "en_US.UTF-8",
		TermProgram:        "neomacs-term",
		TermProgramVersion: "0.1.0",
	}
}

// applyDefaults ensures unset ManagerConfig fields are filled with safe defaults.
func (cfg ManagerConfig) applyDefaults() ManagerConfig {
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.EnvProvider == nil {
		cfg.EnvProvider = DefaultEnvProvider{}
	}
	if cfg.ShellResolver == nil {
		cfg.ShellResolver = DefaultShellResolver{}
	}
	if cfg.ShellArgsProvider == nil {
		cfg.ShellArgsProvider = DefaultShellArgsProvider{}
	}
	if cfg.HistoryBufferSize <= 0 {
		cfg.HistoryBufferSize = 2048
	}
	if cfg.TerminalEnv == (TerminalEnv{}) {
		cfg.TerminalEnv = DefaultTerminalEnv()
	}
	if cfg.DefaultForeground == (colorful.Color{}) {
		cfg.DefaultForeground = colorful.Color{R: 1, G: 1, B: 1}
	}

	return cfg
}

type sessionConfig struct {
	logger            Logger
	envProvider       ShellEnvProvider
	shellResolver     ShellResolver
	shellArgsProvider ShellArgsProvider
	historyBufferSize int
	terminalEnv       TerminalEnv
	defaultFG         colorful.Color
	defaultBG         colorful.Color
	events            EventSink
}

func newSessionConfig(cfg ManagerConfig) sessionConfig {
	cfg = cfg.applyDefaults()
	return sessionConfig{
		logger:            cfg.Logger,
		envProvider:       cfg.EnvProvider,
		shellResolver:     cfg.ShellResolver,
		shellArgsProvider: cfg.ShellArgsProvider,
		historyBufferSize: cfg.HistoryBufferSize,
		terminalEnv:       cfg.TerminalEnv,
		defaultFG:         cfg.DefaultForeground,
		defaultBG:         cfg.DefaultBackground,
		events:            cfg.Events,
	}
}
