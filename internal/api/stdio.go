package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"todo-mcp/go-backend/internal/session"
)

const maxStdioLine = 1 << 20

// ServeStdio runs one implicit session over newline-delimited JSON-RPC. It
// returns when in reaches EOF or ctx is cancelled. Outbound notifications of
// the session are interleaved with responses on out.
func ServeStdio(ctx context.Context, sessions *session.Manager, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sess, err := sessions.Open("")
	if err != nil {
		return fmt.Errorf("open stdio session: %w", err)
	}
	defer sessions.CloseSession(sess, session.CloseReasonStream)

	_, events, detach, err := sess.AttachStream()
	if err != nil {
		return fmt.Errorf("attach stdio stream: %w", err)
	}

	var mu sync.Mutex
	writeLine := func(payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if _, err := out.Write(payload); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for evt := range events {
			raw, err := json.Marshal(struct {
				JSONRPC string `json:"jsonrpc"`
				Method  string `json:"method"`
				Params  any    `json:"params,omitempty"`
			}{JSONRPC: "2.0", Method: evt.Method, Params: evt.Params})
			if err != nil {
				continue
			}
			if err := writeLine(raw); err != nil {
				logger.Warn("stdio notification write failed", "error", err)
				return
			}
		}
	}()
	defer wg.Wait()
	defer detach()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxStdioLine)
		for scanner.Scan() {
			line := append([]byte(nil), bytes.TrimSpace(scanner.Bytes())...)
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	logger.Info("stdio session started", "session_id", sess.ID())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			resp, hasResponse := sess.Dispatcher().HandlePayload(ctx, line)
			if !hasResponse {
				continue
			}
			if err := writeLine(resp); err != nil {
				return fmt.Errorf("write stdio response: %w", err)
			}
		}
	}
}
