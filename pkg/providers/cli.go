package providers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultShell interprets commands and scripts for the local backend.
const DefaultShell = "bash"

// LocalExecutor runs commands and scripts as local subprocesses.
type LocalExecutor struct {
	Shell string   // defaults to DefaultShell
	Dir   string   // working directory, empty = current
	Env   []string // extra KEY=VALUE entries appended to os.Environ()
}

func (l *LocalExecutor) shell() string {
	if l.Shell == "" {
		return DefaultShell
	}
	return l.Shell
}

func (l *LocalExecutor) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, l.shell(), args...)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	return cmd
}

// Execute runs command through the shell and captures its output.
func (l *LocalExecutor) Execute(ctx context.Context, command string) (*CommandResult, error) {
	start := time.Now()
	cmd := l.command(ctx, "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode, err := exitStatus(cmd.Run())
	if err != nil {
		return nil, fmt.Errorf("execute command %q: %w", command, err)
	}

	return &CommandResult{
		Stdout:   bytes.TrimRight(stdout.Bytes(), "\n"),
		Stderr:   bytes.TrimRight(stderr.Bytes(), "\n"),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}

// Stream feeds script to a single long-lived shell on stdin and delivers its
// stdout and stderr line by line as they are produced. The exit code is
// reported once the process terminates.
func (l *LocalExecutor) Stream(ctx context.Context, script string, out func(Line)) (*CommandResult, error) {
	start := time.Now()
	cmd := l.command(ctx, "-s")
	cmd.Stdin = strings.NewReader(script)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.shell(), err)
	}

	lines := make(chan Line)
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(stdout, false, lines, &wg)
	go scanLines(stderr, true, lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
	}()

	// Both pipes must be drained before Wait.
	for line := range lines {
		out(line)
	}

	exitCode, err := exitStatus(cmd.Wait())
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", l.shell(), err)
	}
	return &CommandResult{ExitCode: exitCode, Duration: time.Since(start)}, nil
}

// maxLineBytes bounds one delivered line; longer output lines arrive in
// pieces of this size.
const maxLineBytes = 1024 * 1024

// scanLines delivers r line by line until EOF. The pipe is always drained,
// even after a read error, so the process never blocks on a full pipe.
func scanLines(r io.Reader, isStderr bool, lines chan<- Line, wg *sync.WaitGroup) {
	defer wg.Done()
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(buf) > 0 {
				lines <- Line{Text: string(buf), Stderr: isStderr}
			}
			if !errors.Is(err, io.EOF) {
				lines <- Line{Text: "read output: " + err.Error(), Stderr: true}
				io.Copy(io.Discard, r)
			}
			return
		}
		buf = append(buf, chunk...)
		if isPrefix && len(buf) < maxLineBytes {
			continue
		}
		lines <- Line{Text: string(buf), Stderr: isStderr}
		buf = buf[:0]
	}
}

// exitStatus separates a process exit code from a failure to run at all.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
