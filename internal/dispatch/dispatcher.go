package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/internal/manifest"
	"github.com/dtrlanz/markhor/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from plugin execution.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// Disposition classifies how an exchange ended from the host's point of view.
type Disposition string

const (
	DispositionSucceeded     Disposition = "succeeded"
	DispositionPluginError   Disposition = "plugin_error"
	DispositionProcessFailed Disposition = "process_failed"
	DispositionTimedOut      Disposition = "timed_out"
	DispositionMalformed     Disposition = "malformed_response"
	DispositionSpawnFailed   Disposition = "spawn_failed"
)

// Invocation describes one exchange with a plugin subprocess.
type Invocation struct {
	Plugin     string
	Method     string
	Params     map[string]any
	Entrypoint string
	Dir        string
	Env        []string // extra KEY=VALUE pairs appended to the host environment
	Timeout    time.Duration
}

// NewInvocation builds an Invocation for a discovered plugin, resolving the
// effective timeout and per-plugin environment from config.
func NewInvocation(cfg *config.Config, plug *manifest.Plugin, method string, params map[string]any) Invocation {
	return Invocation{
		Plugin:     plug.Name,
		Method:     method,
		Params:     params,
		Entrypoint: plug.Entrypoint,
		Dir:        plug.Path,
		Env:        cfg.PluginEnv(plug.Name),
		Timeout:    cfg.CallTimeout(plug.Name, plug.Timeout),
	}
}

// Outcome is the classified result of one exchange.
//
// ExitCode is -1 when the process never ran or was terminated before it
// could report one.
type Outcome struct {
	Disposition Disposition
	Response    *protocol.Response
	ExitCode    int
	Stderr      string
	Duration    time.Duration
	Err         error
}

// Succeeded reports whether the exchange completed with a success response.
func (o Outcome) Succeeded() bool {
	return o.Disposition == DispositionSucceeded
}

// Message returns the operator-facing failure summary, empty on success.
// For plugin errors this is the plugin's own message off the wire.
func (o Outcome) Message() string {
	switch {
	case o.Disposition == DispositionSucceeded:
		return ""
	case o.Disposition == DispositionPluginError && o.Response != nil:
		return o.Response.Message
	case o.Err != nil:
		return o.Err.Error()
	default:
		return string(o.Disposition)
	}
}

// Caller executes single exchanges by spawning plugin subprocesses.
type Caller struct {
	logger *slog.Logger
}

// NewCaller creates a new Caller.
func NewCaller() *Caller {
	return &Caller{logger: log.WithComponent("dispatch")}
}

// Call spawns the plugin process, performs one request/response exchange on
// its stdin/stdout, and classifies the outcome. Classification order: spawn
// or pipe faults, then timeout, then a structured error response (any exit
// code), then non-zero exit, then unparseable stdout, then success.
func (c *Caller) Call(ctx context.Context, inv Invocation) Outcome {
	logger := c.logger.With("plugin", inv.Plugin, "method", inv.Method)
	start := time.Now()

	payload, err := protocol.EncodeRequest(protocol.Request{Method: inv.Method, Params: inv.Params})
	if err != nil {
		return Outcome{
			Disposition: DispositionSpawnFailed,
			ExitCode:    -1,
			Err:         fmt.Errorf("encode request: %w", err),
		}
	}

	outcome := c.spawn(ctx, inv, payload, logger)
	outcome.Duration = time.Since(start)
	return outcome
}

func (c *Caller) spawn(ctx context.Context, inv Invocation, payload []byte, logger *slog.Logger) Outcome {
	// Create timer for timeout enforcement
	timeoutTimer := time.NewTimer(inv.Timeout)
	defer timeoutTimer.Stop()

	// Prepare command (don't use CommandContext - we'll manage termination ourselves)
	cmd := exec.Command(inv.Entrypoint)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Outcome{Disposition: DispositionSpawnFailed, ExitCode: -1, Err: fmt.Errorf("create stdin pipe: %w", err)}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning plugin", "entrypoint", inv.Entrypoint, "timeout", inv.Timeout)

	if err := cmd.Start(); err != nil {
		return Outcome{Disposition: DispositionSpawnFailed, ExitCode: -1, Err: fmt.Errorf("start process: %w", err)}
	}

	// Write request to stdin in a goroutine so a stalled reader can't hang us
	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if _, err := stdin.Write(payload); err != nil {
			writeErr <- fmt.Errorf("write request: %w", err)
			return
		}
		writeErr <- nil
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timeoutTimer.C:
		logger.Warn("plugin execution timed out, sending SIGTERM", "timeout", inv.Timeout)
		if cmd.Process != nil {
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				logger.Error("failed to send SIGTERM", "error", err)
			}
		}

		grace := time.NewTimer(terminationGracePeriod)
		defer grace.Stop()

		select {
		case <-waitErr:
			logger.Info("plugin exited after SIGTERM")
		case <-grace.C:
			logger.Warn("plugin did not exit after SIGTERM, sending SIGKILL")
			if cmd.Process != nil {
				if err := cmd.Process.Kill(); err != nil {
					logger.Error("failed to send SIGKILL", "error", err)
				}
			}
			<-waitErr // Wait for process to die
		}

		return Outcome{
			Disposition: DispositionTimedOut,
			ExitCode:    -1,
			Stderr:      truncateStderr(stderr.String()),
			Err:         fmt.Errorf("plugin execution timed out after %v: %w", inv.Timeout, context.DeadlineExceeded),
		}

	case err := <-waitErr:
		if werr := <-writeErr; werr != nil {
			return Outcome{
				Disposition: DispositionSpawnFailed,
				ExitCode:    -1,
				Stderr:      truncateStderr(stderr.String()),
				Err:         werr,
			}
		}

		exitCode := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				logger.Debug("plugin exited with non-zero status", "exit_code", exitCode)
			} else {
				return Outcome{
					Disposition: DispositionSpawnFailed,
					ExitCode:    -1,
					Stderr:      truncateStderr(stderr.String()),
					Err:         fmt.Errorf("wait for process: %w", err),
				}
			}
		}

		return classify(exitCode, stdout.Bytes(), truncateStderr(stderr.String()), logger)
	}
}

// classify applies the response-over-exit-code precedence: a structured
// error response from the plugin outranks whatever the process itself did.
func classify(exitCode int, stdout []byte, stderr string, logger *slog.Logger) Outcome {
	resp, decodeErr := protocol.DecodeResponse(stdout)

	if decodeErr == nil && resp.Status == protocol.StatusError {
		logger.Debug("plugin reported error", "message", resp.Message, "exit_code", exitCode)
		return Outcome{Disposition: DispositionPluginError, Response: &resp, ExitCode: exitCode, Stderr: stderr}
	}

	if exitCode != 0 {
		return Outcome{
			Disposition: DispositionProcessFailed,
			ExitCode:    exitCode,
			Stderr:      stderr,
			Err:         fmt.Errorf("plugin exited with status %d without a structured error", exitCode),
		}
	}

	if decodeErr != nil {
		logger.Error("failed to decode plugin response", "error", decodeErr)
		return Outcome{
			Disposition: DispositionMalformed,
			ExitCode:    exitCode,
			Stderr:      stderr,
			Err:         fmt.Errorf("decode response: %w", decodeErr),
		}
	}

	return Outcome{Disposition: DispositionSucceeded, Response: &resp, ExitCode: exitCode, Stderr: stderr}
}

// truncateStderr limits stderr to maxStderrBytes.
func truncateStderr(s string) string {
	if len(s) <= maxStderrBytes {
		return s
	}
	return s[:maxStderrBytes]
}
