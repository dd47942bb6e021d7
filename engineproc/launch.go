package engineproc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// LaunchSpec describes one engine launch.
type LaunchSpec struct {
	// Executable is the engine runtime binary.
	Executable string

	// Args are passed verbatim after the executable.
	Args []string

	// Dir is the working directory. Empty means the executable's own
	// directory, which is where the runtime expects to find its data.
	Dir string

	// Env entries are appended to the host environment.
	Env []string

	// OnLine receives each captured output line, stderr lines flagged. It is
	// called from pipe-reader goroutines; the caller marshals to wherever the
	// line must land.
	OnLine func(line string, stderr bool)

	// OnExit is called once, from a watcher goroutine, after the process has
	// exited and its terminal state is recorded.
	OnExit func(p *Process)
}

// Launch starts the engine process described by spec. Any failure before the
// process is running is reported as ErrLaunch with the cause attached; no
// partially-started process is ever returned.
func Launch(spec LaunchSpec) (*Process, error) {
	if spec.Executable == "" {
		return nil, fmt.Errorf("%w: no executable configured", ErrLaunch)
	}
	exe, err := exec.LookPath(spec.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if abs, err := filepath.Abs(exe); err == nil {
		exe = abs
	}

	dir := spec.Dir
	if dir == "" {
		dir = filepath.Dir(exe)
	}

	cmd := exec.Command(exe, spec.Args...)
	cmd.Dir = dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrLaunch, err)
	}

	p := newProcess(cmd)
	if err := p.start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	go scanLines(stdout, false, spec.OnLine)
	go scanLines(stderr, true, spec.OnLine)
	if spec.OnExit != nil {
		go notifyExit(p, spec.OnExit)
	}
	return p, nil
}

// scanLines feeds captured output to the line callback until the pipe closes.
func scanLines(r io.Reader, isStderr bool, onLine func(string, bool)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onLine == nil {
			continue
		}
		line := scanner.Text()
		func() {
			defer func() { _ = recover() }()
			onLine(line, isStderr)
		}()
	}
}

func notifyExit(p *Process, onExit func(*Process)) {
	<-p.Done()
	defer func() { _ = recover() }()
	onExit(p)
}
