package terminal

import "os"

// ShellEnvProvider builds environment variables for a new PTY session.
type ShellEnvProvider interface {
	BuildEnv(shellPath string, workingDir string) (env []string, err error)
}

// DefaultEnvProvider returns the current process environment unchanged.
type DefaultEnvProvider struct{}

func (DefaultEnvProvider) BuildEnv(string, string) ([]string, error) {
	return os.Environ(), nil
}

// StaticEnvProvider allows callers to provide an explicit environment.
type StaticEnvProvider struct {
	Env []string
}

func (p StaticEnvProvider) BuildEnv(string, string) ([]string, error) {
	if len(p.Env) == 0 {
		return os.Environ(), nil
	}
	return append([]string{}, p.Env...), nil
}
