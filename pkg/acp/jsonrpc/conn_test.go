package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", OutputPath: "stderr"})
	require.NoError(t, err)
	return log
}

// connPipes wires a Conn to a fake peer. peerIn receives everything the Conn
// sends; peerOut feeds the Conn's read loop.
func connPipes(t *testing.T) (*Conn, *bufio.Scanner, io.WriteCloser) {
	t.Helper()

	connReader, peerWriter := io.Pipe()
	peerReader, connWriter := io.Pipe()

	conn := NewConn(connWriter, connReader, testLogger(t))
	t.Cleanup(conn.Close)
	t.Cleanup(func() { peerWriter.Close() })

	scanner := bufio.NewScanner(peerReader)
	return conn, scanner, peerWriter
}

func TestConnCallCorrelation(t *testing.T) {
	conn, peerScan, peerWrite := connPipes(t)
	conn.Start(context.Background())

	// Fake agent: answer every request with {"echo": <method>}.
	go func() {
		for peerScan.Scan() {
			var req Request
			if json.Unmarshal(peerScan.Bytes(), &req) != nil || req.ID == nil {
				continue
			}
			resp := Response{
				JSONRPC: Version,
				ID:      req.ID,
				Result:  json.RawMessage(`{"echo":"` + req.Method + `"}`),
			}
			data, _ := json.Marshal(resp)
			peerWrite.Write(append(data, '\n'))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := conn.Call(ctx, "test/method", map[string]string{"key": "value"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"test/method"}`, string(result))
}

func TestConnCallReturnsRPCError(t *testing.T) {
	conn, peerScan, peerWrite := connPipes(t)
	conn.Start(context.Background())

	go func() {
		for peerScan.Scan() {
			var req Request
			if json.Unmarshal(peerScan.Bytes(), &req) != nil || req.ID == nil {
				continue
			}
			resp := Response{
				JSONRPC: Version,
				ID:      req.ID,
				Error:   NewError(CodeMethodNotFound, "no such method"),
			}
			data, _ := json.Marshal(resp)
			peerWrite.Write(append(data, '\n'))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.Call(ctx, "bogus/method", nil)
	require.Error(t, err)

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestConnCloseFailsPendingCalls(t *testing.T) {
	conn, _, _ := connPipes(t)
	conn.Start(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), "never/answered", nil)
		errCh <- err
	}()

	// Give the call time to register before closing.
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending call was not failed on close")
	}
}

func TestConnPeerEOFFailsPendingCalls(t *testing.T) {
	conn, _, peerWrite := connPipes(t)
	conn.Start(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), "never/answered", nil)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	peerWrite.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending call was not failed on peer EOF")
	}
}

func TestConnDispatchesInboundRequest(t *testing.T) {
	conn, peerScan, peerWrite := connPipes(t)
	conn.SetRequestHandler(func(ctx context.Context, method string, params json.RawMessage) (any, *Error) {
		assert.Equal(t, "callback/test", method)
		return map[string]string{"status": "ok"}, nil
	})
	conn.Start(context.Background())

	_, err := peerWrite.Write([]byte(`{"jsonrpc":"2.0","id":42,"method":"callback/test","params":{}}` + "\n"))
	require.NoError(t, err)

	respCh := make(chan Response, 1)
	go func() {
		for peerScan.Scan() {
			var resp Response
			if json.Unmarshal(peerScan.Bytes(), &resp) == nil && resp.ID != nil {
				respCh <- resp
				return
			}
		}
	}()

	select {
	case resp := <-respCh:
		require.NotNil(t, resp.ID)
		assert.Equal(t, int64(42), *resp.ID)
		assert.JSONEq(t, `{"status":"ok"}`, string(resp.Result))
	case <-time.After(5 * time.Second):
		t.Fatal("no response to inbound request")
	}
}

func TestConnInboundRequestWithoutHandler(t *testing.T) {
	conn, peerScan, peerWrite := connPipes(t)
	conn.Start(context.Background())

	_, err := peerWrite.Write([]byte(`{"jsonrpc":"2.0","id":7,"method":"callback/test"}` + "\n"))
	require.NoError(t, err)

	respCh := make(chan Response, 1)
	go func() {
		for peerScan.Scan() {
			var resp Response
			if json.Unmarshal(peerScan.Bytes(), &resp) == nil && resp.ID != nil {
				respCh <- resp
				return
			}
		}
	}()

	select {
	case resp := <-respCh:
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("no error response for unhandled request")
	}
}

func TestConnDispatchesNotification(t *testing.T) {
	conn, _, peerWrite := connPipes(t)

	received := make(chan string, 1)
	conn.SetNotificationHandler(func(method string, params json.RawMessage) {
		received <- method
	})
	conn.Start(context.Background())

	_, err := peerWrite.Write([]byte(`{"jsonrpc":"2.0","method":"session/update","params":{}}` + "\n"))
	require.NoError(t, err)

	select {
	case method := <-received:
		assert.Equal(t, "session/update", method)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not dispatched")
	}
}

func TestConnDropsMalformedLines(t *testing.T) {
	conn, peerScan, peerWrite := connPipes(t)
	conn.Start(context.Background())

	// Garbage followed by a valid request: the loop must survive the garbage.
	_, err := peerWrite.Write([]byte("not json at all\n"))
	require.NoError(t, err)
	_, err = peerWrite.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"x"}` + "\n"))
	require.NoError(t, err)

	respCh := make(chan Response, 1)
	go func() {
		for peerScan.Scan() {
			var resp Response
			if json.Unmarshal(peerScan.Bytes(), &resp) == nil && resp.ID != nil {
				respCh <- resp
				return
			}
		}
	}()

	select {
	case resp := <-respCh:
		assert.Equal(t, int64(1), *resp.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not survive malformed input")
	}
}
