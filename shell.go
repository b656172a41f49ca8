package terminal

import (
	"bufio"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ShellResolver returns the executable path for the login shell.
type ShellResolver interface {
	ResolveShell(logger Logger) string
}

// ShellArgsProvider returns extra argv and env variables for a shell
// invocation. A nil args slice means "no opinion" and falls back to a login
// shell; an empty non-nil slice runs the shell without extra args.
type ShellArgsProvider interface {
	GetShellArgs(shellPath string) (args []string, env []string)
}

// DefaultShellResolver looks up the shell from $SHELL, then /etc/passwd,
// then a short list of common paths.
type DefaultShellResolver struct{}

func (DefaultShellResolver) ResolveShell(logger Logger) string {
	if shell := os.Getenv("SHELL"); shell != "" {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
		logger.Warn("SHELL points to missing file", "shell", shell)
	}

	if shell := resolveShellFromPasswd(logger); shell != "" {
		return shell
	}

	for _, shell := range []string{"/bin/bash", "/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(shell); err == nil {
			logger.Info("Using fallback shell", "shell", filepath.Base(shell))
			return shell
		}
	}

	logger.Warn("No suitable shell found, using /bin/sh")
	return "/bin/sh"
}

func resolveShellFromPasswd(logger Logger) string {
	currentUser, err := user.Current()
	if err != nil {
		logger.Warn("Failed to resolve current user", "error", err)
		return ""
	}

	passwdFile, err := os.Open("/etc/passwd")
	if err != nil {
		logger.Warn("Failed to open /etc/passwd", "error", err)
		return ""
	}
	defer passwdFile.Close()

	scanner := bufio.NewScanner(passwdFile)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		if fields[0] != currentUser.Username {
			continue
		}
		shell := fields[6]
		if _, err := os.Stat(shell); err == nil {
			logger.Info("Found shell from /etc/passwd", "shell", filepath.Base(shell))
			return shell
		}
		logger.Warn("Shell from /etc/passwd missing", "shell", filepath.Base(shell))
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("Error reading /etc/passwd", "error", err)
	}

	return ""
}

// StaticShellResolver always returns a fixed shell path.
type StaticShellResolver struct {
	Shell string
}

func (r StaticShellResolver) ResolveShell(Logger) string { return r.Shell }

// DefaultShellArgsProvider is conservative: it returns no args/env overrides.
type DefaultShellArgsProvider struct{}

func (DefaultShellArgsProvider) GetShellArgs(string) ([]string, []string) {
	return nil, nil
}

// StaticShellArgsProvider returns fixed args and env for every invocation.
// Useful for tests and for embedding a non-interactive command.
type StaticShellArgsProvider struct {
	Args []string
	Env  []string
}

func (p StaticShellArgsProvider) GetShellArgs(string) ([]string, []string) {
	return p.Args, p.Env
}
