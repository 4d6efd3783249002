package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultPlayers are tried in order when no player command is configured.
var DefaultPlayers = []string{
	"ffplay -nodisp -autoexit -loglevel quiet",
	"mpv --no-video --really-quiet",
	"afplay",
	"paplay",
}

// ProcessBackend plays each clip by running an external player on a file path.
// The clip completes when the player exits.
type ProcessBackend struct {
	command string
	args    []string
}

// NewProcessBackend returns a backend running command (program plus arguments;
// the file path is appended). An empty command picks the first of
// DefaultPlayers found on PATH.
func NewProcessBackend(command string) (*ProcessBackend, error) {
	candidates := DefaultPlayers
	if strings.TrimSpace(command) != "" {
		candidates = []string{command}
	}
	for _, c := range candidates {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		path, err := exec.LookPath(fields[0])
		if err != nil {
			continue
		}
		return &ProcessBackend{command: path, args: fields[1:]}, nil
	}
	return nil, fmt.Errorf("%w: no player found (tried %s)", ErrBackendUnavailable, strings.Join(candidates, "; "))
}

// Command returns the resolved player program.
func (b *ProcessBackend) Command() string {
	return b.command
}

// pather is implemented by sources that live on disk.
type pather interface {
	Path() string
}

// CreateClip resolves src to a file and prepares the player process.
func (b *ProcessBackend) CreateClip(ctx context.Context, src Source) (Clip, error) {
	c := &processClip{done: make(chan struct{})}

	path := ""
	if p, ok := src.(pather); ok {
		path = p.Path()
	} else {
		tmp, err := spill(src)
		if err != nil {
			return nil, NewClipCreationError(src.Name(), err)
		}
		path, c.tmp = tmp, tmp
	}
	if _, err := os.Stat(path); err != nil {
		c.removeTemp()
		return nil, NewClipCreationError(src.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		c.removeTemp()
		return nil, NewClipCreationError(src.Name(), err)
	}

	args := append(append([]string{}, b.args...), path)
	c.cmd = exec.Command(b.command, args...)
	return c, nil
}

// spill copies an in-memory source to a temporary file.
func spill(src Source) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "picbook-*"+filepath.Ext(src.Name()))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

type processClip struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	tmp      string
	started  bool
	released bool
	done     chan struct{}
}

func (c *processClip) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	if c.started {
		return nil
	}
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", filepath.Base(c.cmd.Path), err)
	}
	c.started = true
	go c.wait()
	return nil
}

func (c *processClip) wait() {
	c.cmd.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.released {
		close(c.done)
	}
}

func (c *processClip) Done() <-chan struct{} {
	return c.done
}

func (c *processClip) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	started := c.started
	c.mu.Unlock()

	var err error
	if started {
		if kerr := c.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = kerr
		}
	}
	c.removeTemp()
	return err
}

func (c *processClip) removeTemp() {
	if c.tmp != "" {
		os.Remove(c.tmp)
	}
}
