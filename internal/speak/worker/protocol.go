// Package worker implements both sides' shared constants and the server half
// of the synthesis worker protocol.
//
// Protocol:
//
//  1. The parent spawns the worker with the shared secret in the
//     [SecretEnv] environment variable.
//  2. The worker listens on 127.0.0.1 with an OS-assigned port and writes
//     "<port>/" to stdout exactly once.
//  3. For every request the parent opens a websocket connection carrying
//     "Authorization: Bearer <secret>", sends one text message and waits for
//     one message back. The reply content carries no meaning.
//  4. Sending [ShutdownToken] instead of text stops the worker's accept loop.
//     No reply is sent.
package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	// ShutdownToken terminates the worker.
	ShutdownToken = "SHUTDOWN"

	// SecretEnv carries the shared secret from parent to worker.
	SecretEnv = "HEARTH_WORKER_SECRET"

	// Ack is the reply the worker sends after each synthesis.
	Ack = "done"

	// Terminator ends the port announcement on stdout.
	Terminator = '/'

	authScheme = "Bearer "
)

// ErrNoAnnouncement is returned by [ReadAnnouncement] when the stream ends
// before a "<port>/" token was seen.
var ErrNoAnnouncement = errors.New("worker: no port announcement")

// AuthHeader returns the Authorization header value for secret.
func AuthHeader(secret string) string { return authScheme + secret }

// Announce writes the bootstrap line for port to w.
func Announce(w io.Writer, port int) error {
	_, err := fmt.Fprintf(w, "%d%c\n", port, Terminator)
	return err
}

// ReadAnnouncement scans r until a run of digits immediately followed by
// [Terminator] is found and returns the port. Anything else the worker
// prints before that (banners, engine warnings) is skipped.
func ReadAnnouncement(r *bufio.Reader) (int, error) {
	var digits []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, ErrNoAnnouncement
			}
			return 0, fmt.Errorf("worker: read announcement: %w", err)
		}
		switch {
		case b >= '0' && b <= '9':
			digits = append(digits, b)
		case b == Terminator && len(digits) > 0:
			port, err := strconv.Atoi(string(digits))
			if err != nil || port <= 0 || port > 65535 {
				return 0, fmt.Errorf("worker: invalid port %q", digits)
			}
			return port, nil
		default:
			digits = digits[:0]
		}
	}
}
