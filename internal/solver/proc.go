package solver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ticketmill/drover/internal/types"
)

// maxOutputLines caps captured output so a chatty agent cannot exhaust
// memory over a multi-hour run.
const maxOutputLines = 10000

// runAgent spawns the agent command, streams its output through the
// classifier, and classifies the exit. This is the shared body of every
// adapter; only argument construction differs between agents.
func runAgent(ctx context.Context, req Request, name string, args []string) (*types.AttemptResult, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if req.Dir != "" {
		cmd.Dir = req.Dir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}

	var (
		mu      sync.Mutex
		scanner StreamScanner
		lines   int
	)
	consume := func(r io.Reader) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			mu.Lock()
			if lines < maxOutputLines {
				lines++
				scanner.Scan(line)
				if req.Output != nil {
					fmt.Fprintln(req.Output, line)
				}
			}
			mu.Unlock()
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); consume(stdout) }()
	go func() { defer wg.Done(); consume(stderr) }()

	waitCh := make(chan error, 1)
	go func() {
		wg.Wait()
		waitCh <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-waitCh
		return nil, fmt.Errorf("%s timed out after %v", name, timeout)
	case <-ctx.Done():
		<-waitCh
		return nil, ctx.Err()
	case waitErr = <-waitCh:
	}

	exitCode := 0
	if waitErr != nil {
		exitCode = 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return &types.AttemptResult{
		Success:      exitCode == 0 && !scanner.LimitReached(),
		LimitReached: scanner.LimitReached(),
		SessionToken: scanner.SessionToken(),
		ResetClock:   scanner.ResetClock(),
		ExitCode:     exitCode,
		Duration:     time.Since(start),
	}, nil
}
