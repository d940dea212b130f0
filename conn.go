package meanstoend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/harveysanders/meanstoend/log"
	"github.com/harveysanders/meanstoend/proto"
)

// connState is the lifecycle of a single client connection.
type connState int

const (
	stateOpen connState = iota
	stateProcessing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateProcessing:
		return "processing"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("connState(%d)", int(s))
	}
}

type conn struct {
	rwc     net.Conn  // Read/write TCP connection.
	id      uint64    // Sequential connection ID.
	session uuid.UUID // Unique ID of the session owned by this connection.
	server  *Server
	state   connState
}

func (c *conn) serve(ctx context.Context) {
	ctx = context.WithValue(ctx, log.KeyConnID, slog.Uint64(logKeyConnID, c.id))
	ctx = context.WithValue(ctx, log.KeySessionID, slog.String(logKeySession, c.session.String()))
	logger := c.server.logger

	defer func() {
		if err := c.rwc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.ErrorContext(ctx, "close connection", logKeyError, err)
		}
		c.setState(ctx, stateClosed)
		c.server.trackConn(c, false)
	}()

	logger.InfoContext(ctx, "client connected", logKeyRemote, c.rwc.RemoteAddr().String())

	store, err := c.server.newStore(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "open store", logKeyError, err)
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.ErrorContext(ctx, "close store", logKeyError, err)
		}
	}()

	dec := proto.NewDecoder(c.rwc)
	c.setState(ctx, stateProcessing)

	err = c.process(ctx, dec, store)
	var netErr net.Error
	switch {
	case err == nil:
		if n := dec.Buffered(); n > 0 {
			logger.DebugContext(ctx, "discarding partial record", "bytes", n)
		}
		logger.InfoContext(ctx, "client disconnected")
	case isProtocolViolation(err):
		logger.ErrorContext(ctx, "protocol violation, closing connection", logKeyError, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.InfoContext(ctx, "idle timeout, closing connection", logKeyError, err)
	case errors.Is(err, net.ErrClosed):
		logger.InfoContext(ctx, "connection closed by server")
	default:
		logger.ErrorContext(ctx, "connection error", logKeyError, err)
	}
}

// process handles records one at a time until the client closes the stream or
// an error occurs. A nil error means the client ended the stream.
func (c *conn) process(ctx context.Context, dec *proto.Decoder, store Store) error {
	logger := c.server.logger
	for {
		if err := c.extendDeadline(); err != nil {
			return fmt.Errorf("extendDeadline: %w", err)
		}

		rec, err := dec.ReadRecord()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("dec.ReadRecord: %w", err)
		}

		msg, err := rec.Message()
		if err != nil {
			return fmt.Errorf("rec.Message: %w", err)
		}
		logger.DebugContext(ctx, "received message", logKeyRecord, msg.String())

		switch m := msg.(type) {
		case proto.Insert:
			if err := store.Insert(ctx, Price{Timestamp: m.Timestamp, Price: m.Price}); err != nil {
				return fmt.Errorf("store.Insert (timestamp: %d): %w", m.Timestamp, err)
			}
		case proto.Query:
			mean, err := store.Mean(ctx, m.MinTime, m.MaxTime)
			if err != nil {
				return fmt.Errorf("store.Mean: %w", err)
			}
			resp, err := proto.Mean(mean).MarshalBinary()
			if err != nil {
				return fmt.Errorf("mean.MarshalBinary: %w", err)
			}
			if _, err := c.rwc.Write(resp); err != nil {
				return fmt.Errorf("write mean: %w", err)
			}
		default:
			return fmt.Errorf("unhandled message type %q", msg.Type())
		}
	}
}

func (c *conn) extendDeadline() error {
	if c.server.config.IdleTimeout <= 0 {
		return nil
	}
	return c.rwc.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout))
}

func (c *conn) setState(ctx context.Context, state connState) {
	c.server.logger.DebugContext(ctx, "state change", logKeyState, fmt.Sprintf("%s -> %s", c.state, state))
	c.state = state
}

// isProtocolViolation reports whether err was caused by the client breaking the protocol rather than by the transport.
func isProtocolViolation(err error) bool {
	return errors.Is(err, proto.ErrInvalidOpcode) ||
		errors.Is(err, proto.ErrRecordLen) ||
		errors.Is(err, ErrDuplicateTimestamp)
}
