package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ProcessOptions configures a language server launch.
type ProcessOptions struct {
	// DataDir is passed to the server as "-data <dir>". It must lie outside
	// the workspace.
	DataDir string
	// LaunchGrace is how long the process must survive after spawn before
	// the launch counts as successful.
	LaunchGrace time.Duration
}

// Process supervises one language server subprocess: its stdio pipes, the
// background stderr drain, and forced termination.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	cancel context.CancelFunc
	tasks  errgroup.Group

	done    chan struct{} // closed once the process has been reaped
	exitErr error

	termOnce sync.Once
}

// StartProcess spawns commandLine (split on whitespace) with "-data <dir>"
// appended, in workspace as working directory. It fails with ErrLaunch when
// the command cannot be executed or is no longer alive after the grace window.
func StartProcess(ctx context.Context, workspace, commandLine string, opts ProcessOptions) (*Process, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		spawnsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("%w: empty command", ErrLaunch)
	}
	args := append(fields[1:len(fields):len(fields)], "-data", opts.DataDir)

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, fields[0], args...)
	cmd.Dir = workspace
	// Bounds how long Wait blocks on pipes held open by grandchildren after a kill.
	cmd.WaitDelay = 2 * time.Second

	p := &Process{
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var err error
	if p.stdin, err = cmd.StdinPipe(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrLaunch, err)
	}
	if p.stdout, err = cmd.StdoutPipe(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrLaunch, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		spawnsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunch, fields[0], err)
	}

	log.Info().
		Int("pid", cmd.Process.Pid).
		Str("command", fields[0]).
		Str("data_dir", opts.DataDir).
		Msg("lsp: server process started")

	p.tasks.Go(func() error {
		drainStderr(stderr)
		return nil
	})
	p.tasks.Go(func() error {
		p.exitErr = cmd.Wait()
		close(p.done)
		log.Debug().Err(p.exitErr).Int("pid", cmd.Process.Pid).Msg("lsp: server process exited")
		return nil
	})

	grace := time.NewTimer(opts.LaunchGrace)
	defer grace.Stop()
	select {
	case <-p.done:
		p.Terminate(context.Background(), nil)
		spawnsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("%w: %s exited immediately: %v", ErrLaunch, fields[0], p.exitErr)
	case <-ctx.Done():
		p.Terminate(context.Background(), nil)
		spawnsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, ctx.Err())
	case <-grace.C:
	}

	spawnsTotal.WithLabelValues(outcomeOK).Inc()
	return p, nil
}

// maxStderrLine caps how much of a single stderr line is logged.
const maxStderrLine = 64 * 1024

// drainStderr logs every line the server writes to stderr so the pipe never
// fills up and stalls it. Lines longer than maxStderrLine are truncated and
// the remainder discarded. Returns when the pipe is closed.
func drainStderr(r io.Reader) {
	br := bufio.NewReaderSize(r, maxStderrLine)
	for {
		line, isPrefix, err := br.ReadLine()
		if len(line) > 0 {
			msg := string(line)
			ev := log.Debug().Str("source", "jdtls")
			if isPrefix {
				ev = ev.Bool("truncated", true)
				// Skip the rest of the line.
				for isPrefix && err == nil {
					_, isPrefix, err = br.ReadLine()
				}
			}
			ev.Msg(msg)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msg("lsp: stderr drain stopped")
			}
			return
		}
	}
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// IsAlive reports whether the process has not yet exited. The answer is
// only as fresh as the call.
func (p *Process) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Exited is closed once the process has exited and been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// Stdio returns the server's stdout (read side) and stdin (write side) as one stream.
func (p *Process) Stdio() io.ReadWriteCloser {
	return stdio{ReadCloser: p.stdout, WriteCloser: p.stdin}
}

// Terminate runs graceful (if non-nil and the process is alive), then kills
// the process and waits for the background tasks to stop. Safe to call more
// than once; only the first call has any effect.
func (p *Process) Terminate(ctx context.Context, graceful func(context.Context)) {
	p.termOnce.Do(func() {
		if graceful != nil && p.IsAlive() {
			graceful(ctx)
		}
		p.cancel()
		_ = p.stdin.Close()
		if err := p.tasks.Wait(); err != nil {
			log.Warn().Err(err).Msg("lsp: background task")
		}
	})
}

type stdio struct {
	io.ReadCloser
	io.WriteCloser
}

func (s stdio) Close() error {
	werr := s.WriteCloser.Close()
	rerr := s.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
