package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Handler answers one command from a client.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// requestTimeout bounds how long a client may take to send its request.
const requestTimeout = 2 * time.Second

// Serve answers one request per connection until ctx is done or the
// listener closes. A nil logger discards connection errors.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			serveConn(ctx, conn, handler, logger)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler, logger *slog.Logger) {
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	var req Request
	if err := readLine(conn, &req); err != nil {
		logger.Debug("ipc request rejected", "error", err.Error())
		_ = writeLine(conn, failed("read request: %v", err))
		return
	}

	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if req.Command == "" {
		_ = writeLine(conn, failed("empty command"))
		return
	}

	resp := handler.Handle(ctx, req)
	logger.Debug("ipc command", "command", req.Command, "ok", resp.OK, "state", resp.State)
	if err := writeLine(conn, resp); err != nil {
		logger.Debug("ipc response not delivered", "command", req.Command, "error", err.Error())
	}
}
