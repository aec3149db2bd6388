package speak

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hearth/internal/speak/worker"
)

// workerChannel is the live link to the synthesis worker process. Only the
// coordinator loop calls speak; shutdown is called once by Close.
type workerChannel struct {
	cmd      *exec.Cmd
	endpoint string
	secret   string
	ready    atomic.Bool
	exited   chan struct{}
	waitErr  error
}

// startWorker spawns argv and waits up to timeout for the "<port>/"
// announcement on the child's stdout. env is appended to the inherited
// environment.
func startWorker(ctx context.Context, argv []string, secret string, timeout time.Duration, env []string) (*workerChannel, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("speak: worker command must not be empty")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Env = append(cmd.Env, worker.SecretEnv+"="+secret)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("speak: worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("speak: start worker %q: %w", argv[0], err)
	}

	ch := &workerChannel{cmd: cmd, secret: secret, exited: make(chan struct{})}

	type announcement struct {
		port int
		err  error
	}
	found := make(chan announcement, 1)
	br := bufio.NewReader(stdout)
	go func() {
		port, err := worker.ReadAnnouncement(br)
		found <- announcement{port, err}
		if err == nil {
			drainOutput(br)
		}
		// Wait must not run before all reads from the pipe have finished.
		ch.waitErr = cmd.Wait()
		close(ch.exited)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case a := <-found:
		if a.err != nil {
			ch.kill()
			if errors.Is(a.err, worker.ErrNoAnnouncement) {
				return nil, ErrNoEndpoint
			}
			return nil, fmt.Errorf("speak: worker bootstrap: %w", a.err)
		}
		ch.endpoint = "ws://127.0.0.1:" + strconv.Itoa(a.port)
	case <-timer.C:
		ch.kill()
		return nil, fmt.Errorf("%w within %s", ErrNoEndpoint, timeout)
	case <-ctx.Done():
		ch.kill()
		return nil, ctx.Err()
	}

	ch.ready.Store(true)
	slog.Info("speak: worker ready", "pid", cmd.Process.Pid, "endpoint", ch.endpoint)
	return ch, nil
}

// drainOutput forwards the worker's remaining stdout to the debug log so the
// child never blocks on a full pipe.
func drainOutput(r *bufio.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			slog.Debug("speak: worker output", "line", line)
		}
	}
}

func (ch *workerChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, ch.endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{worker.AuthHeader(ch.secret)}},
	})
	if err != nil {
		return nil, fmt.Errorf("speak: dial worker: %w", err)
	}
	return conn, nil
}

// speak sends text and blocks until the worker acknowledges it.
func (ch *workerChannel) speak(ctx context.Context, text string) error {
	if !ch.ready.Load() {
		return errors.New("speak: worker not ready")
	}
	conn, err := ch.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		return fmt.Errorf("speak: send text: %w", err)
	}
	if _, _, err := conn.Read(ctx); err != nil {
		return fmt.Errorf("speak: await ack: %w", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

// shutdown sends the shutdown token without waiting for a reply, then waits
// up to grace for the process to exit before killing it.
func (ch *workerChannel) shutdown(ctx context.Context, grace time.Duration) error {
	if !ch.ready.Swap(false) {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	var sendErr error
	if conn, err := ch.dial(sendCtx); err != nil {
		sendErr = err
	} else {
		sendErr = conn.Write(sendCtx, websocket.MessageText, []byte(worker.ShutdownToken))
		conn.Close(websocket.StatusNormalClosure, "")
	}
	if sendErr != nil {
		slog.Warn("speak: failed to send shutdown token", "err", sendErr)
	}

	select {
	case <-ch.exited:
	case <-time.After(grace):
		slog.Warn("speak: worker did not exit, killing", "pid", ch.cmd.Process.Pid)
		ch.kill()
	case <-ctx.Done():
		ch.kill()
	}
	if ch.waitErr != nil && !isKilled(ch.waitErr) {
		return fmt.Errorf("speak: worker exit: %w", ch.waitErr)
	}
	return nil
}

// alive reports whether the handshake completed and the process is still
// running.
func (ch *workerChannel) alive() bool {
	if !ch.ready.Load() {
		return false
	}
	select {
	case <-ch.exited:
		return false
	default:
		return true
	}
}

func (ch *workerChannel) kill() {
	if ch.cmd.Process != nil {
		_ = ch.cmd.Process.Kill()
	}
	<-ch.exited
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == -1
}
