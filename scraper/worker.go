package scraper

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"glownest/models"
)

// Process is one running extraction worker. Signal asks it to finish the
// current page and exit; Kill is the last resort when it does not.
type Process interface {
	Stdout() io.Reader
	Signal() error
	Kill() error
	Wait() error
}

// Launcher spawns a worker for the given config, starting at startPage.
type Launcher interface {
	Launch(ctx context.Context, cfg models.JobConfig, startPage int) (Process, error)
}

// ExecLauncher runs the worker binary as a child process. The worker's
// stderr passes straight through to ours; stdout carries the event stream.
type ExecLauncher struct {
	Bin string
}

func (l *ExecLauncher) Launch(ctx context.Context, cfg models.JobConfig, startPage int) (Process, error) {
	args := []string{
		"--listing-type", cfg.ListingType,
		"--max-pages", strconv.Itoa(cfg.MaxPages),
		"--delay-ms", strconv.Itoa(cfg.DelayMS),
		"--start-page", strconv.Itoa(startPage),
	}
	if cfg.Headful {
		args = append(args, "--headful")
	}

	cmd := exec.Command(l.Bin, args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", l.Bin, err)
	}

	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *execProcess) Signal() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}
