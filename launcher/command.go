package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/joho/godotenv"
)

// ErrEmptyCommand is returned when the configured command has no words.
var ErrEmptyCommand = errors.New("empty command")

// BuildCommand turns the configured command line into an exec.Cmd that
// passes port to the start script, either as "<PortFlag> <port>" or, with
// an empty PortFlag, as a trailing positional argument.
func BuildCommand(cfg Config, port uint16) (*exec.Cmd, error) {
	parts, err := shlex.Split(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}

	args := parts[1:]
	if cfg.PortFlag != "" {
		args = append(args, cfg.PortFlag)
	}
	args = append(args, strconv.Itoa(int(port)))

	cmd := exec.Command(parts[0], args...)
	cmd.Dir = cfg.Workdir

	env, err := buildEnv(cfg.Workdir, cfg.Env, cfg.logger())
	if err != nil {
		return nil, err
	}
	cmd.Env = env

	configureConsole(cmd, cfg.NewConsole)
	return cmd, nil
}

// buildEnv merges, in increasing precedence, the supervisor environment,
// a .env file in workdir and the configured variables.
func buildEnv(workdir string, extra map[string]string, log *slog.Logger) ([]string, error) {
	envMap := make(map[string]string)

	for _, env := range os.Environ() {
		if idx := strings.Index(env, "="); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	if workdir != "" {
		dotenvPath := filepath.Join(workdir, ".env")
		if _, err := os.Stat(dotenvPath); err == nil {
			dotenvVars, err := godotenv.Read(dotenvPath)
			if err != nil {
				return nil, fmt.Errorf("parse .env file %s: %w", dotenvPath, err)
			}
			for k, v := range dotenvVars {
				envMap[k] = v
			}
			log.Debug("loaded .env file", "path", dotenvPath, "vars", len(dotenvVars))
		}
	}

	for k, v := range extra {
		envMap[k] = v
	}

	env := make([]string, 0, len(envMap))
	for k, v := range envMap {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}
