package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/logging"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/registry"
)

const (
	// EnvPrefix prefixes the environment variables carrying state options.
	EnvPrefix = "BONSAI_OPT_"

	optionTimeout    = "timeout"
	optionOutputSlot = "output_slot"

	defaultPoll = 20 * time.Millisecond
)

var (
	validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	envUnsafe = regexp.MustCompile(`[^A-Z0-9_]`)
)

// Option configures the registered skills.
type Option func(*settings)

type settings struct {
	baseDir string
	poll    time.Duration
	logger  *slog.Logger
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(s *settings) { s.baseDir = dir }
}

// WithPollInterval sets how often a running process is checked.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) { s.poll = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// Register adds a skill named prefix+name for every process.
func Register(reg *registry.Registry, prefix string, procs map[string]ProcessConfig, opts ...Option) error {
	s := settings{poll: defaultPoll, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	for name, proc := range procs {
		proc.Name = name
		if err := proc.Validate(); err != nil {
			return err
		}
		reg.Register(prefix+name, func() (ports.Skill, error) {
			return &Skill{proc: proc, settings: s}, nil
		})
	}
	return nil
}

// Skill runs one external command for the duration of a state.
type Skill struct {
	proc ProcessConfig
	settings

	env     []string
	timeout time.Duration
	output  ports.MemorySlot

	success domain.ExitToken
	failure domain.ExitToken
	expired domain.ExitToken
	lost    domain.ExitToken

	cmd      *exec.Cmd
	done     chan error
	exited   bool
	deadline time.Time
	stdout   bytes.Buffer
	stderr   bytes.Buffer

	// ExitCode is the exit code of the finished command, -1 if it was killed.
	ExitCode int
}

func (s *Skill) Configure(c ports.Configurator) error {
	var opts map[string]string
	if err := c.DecodeOptions(&opts); err != nil {
		return err
	}
	s.timeout = c.RequestOptionalDuration(optionTimeout, 0)
	if slot := c.RequestOptionalValue(optionOutputSlot, ""); slot != "" {
		s.output = c.RequestSlot(slot)
		s.lost = c.RequestExitToken(domain.Error().WithProcessingStatus("output"))
	}
	s.success = c.RequestExitToken(domain.Success())
	s.failure = c.RequestExitToken(domain.Error().WithProcessingStatus("exit"))
	if s.timeout > 0 {
		s.expired = c.RequestExitToken(domain.Error().WithProcessingStatus("timeout"))
	}

	s.env = s.env[:0]
	for k, v := range s.proc.Environment {
		s.env = append(s.env, k+"="+v)
	}
	for k, v := range opts {
		if k == optionTimeout || k == optionOutputSlot {
			continue
		}
		s.env = append(s.env, EnvPrefix+envUnsafe.ReplaceAllString(strings.ToUpper(k), "_")+"="+v)
	}
	sort.Strings(s.env)
	return nil
}

// Init starts the command. The command is bound to ctx, so a forced end
// kills it.
func (s *Skill) Init(ctx context.Context) bool {
	s.cmd = exec.CommandContext(ctx, s.proc.Command, s.proc.Args...)
	s.cmd.Dir = s.baseDir
	s.cmd.Env = append(s.cmd.Environ(), s.env...)
	s.cmd.Stdout = &s.stdout
	s.cmd.Stderr = &s.stderr
	s.cmd.WaitDelay = time.Second

	if err := s.cmd.Start(); err != nil {
		s.logger.Error("process failed to start", "process", s.proc.Name, "command", s.proc.Command, "err", err)
		return false
	}
	s.deadline = time.Now().Add(s.timeout)
	s.done = make(chan error, 1)
	go func() { s.done <- s.cmd.Wait() }()
	return true
}

func (s *Skill) Execute(ctx context.Context) domain.ExitToken {
	select {
	case err := <-s.done:
		s.exited = true
		return s.finish(ctx, err)
	default:
	}
	if s.timeout > 0 && time.Now().After(s.deadline) {
		s.logger.Warn("process timed out", "process", s.proc.Name, "timeout", s.timeout)
		return s.expired
	}
	return domain.Loop(s.poll)
}

// End kills the command if it is still running.
func (s *Skill) End(_ context.Context, t domain.ExitToken) domain.ExitToken {
	if !s.exited && s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		<-s.done
		s.exited = true
		s.ExitCode = -1
	}
	return t
}

// Stdout returns what the command wrote to standard output.
func (s *Skill) Stdout() string { return s.stdout.String() }

func (s *Skill) finish(ctx context.Context, err error) domain.ExitToken {
	if err != nil {
		s.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			s.ExitCode = exitErr.ExitCode()
		}
		s.logger.Warn("process failed", "process", s.proc.Name, "code", s.ExitCode, "stderr", strings.TrimSpace(s.stderr.String()))
		return s.failure
	}
	if s.output != nil {
		if err := s.output.Store(ctx, decodeOutput(s.stdout.String())); err != nil {
			s.logger.Warn("process output not stored", "process", s.proc.Name, "err", err)
			return s.lost
		}
	}
	return s.success
}

// decodeOutput returns JSON documents decoded and anything else as trimmed text.
func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
