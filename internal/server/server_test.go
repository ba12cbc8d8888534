package server

import (
	"bufio"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/minidb/minidb/internal/pipeline"
)

func testEngine() *pipeline.Engine {
	return pipeline.NewEngine(8, true, zerolog.Nop())
}

func TestPoolRunsSubmittedJobsThenDrains(t *testing.T) {
	var handled int64
	done := make(chan struct{})
	p := newPool(2, 4, func(c *Connection) {
		atomic.AddInt64(&handled, 1)
		done <- struct{}{}
	})

	for i := 0; i < 3; i++ {
		p.submit(&Connection{})
		<-done
	}
	p.shutdown()

	if got := atomic.LoadInt64(&handled); got != 3 {
		t.Fatalf("expected 3 handled jobs, got %d", got)
	}
}

func TestServerRejectsConnectionsOverCapacity(t *testing.T) {
	s := New(Config{MaxConnections: 0}, testEngine(), zerolog.Nop())

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	done := make(chan struct{})
	go func() {
		s.acceptOne(serverSide)
		close(done)
	}()

	reader := bufio.NewReader(clientSide)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read rejection response: %v", err)
	}
	var resp pipeline.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" {
		t.Fatalf("expected error status, got %q", resp.Status)
	}
	<-done

	if len(s.active) != 0 {
		t.Fatalf("expected no active connections, got %d", len(s.active))
	}
}

func TestServerAcceptsAndServesMetaExit(t *testing.T) {
	s := New(Config{MaxConnections: 4}, testEngine(), zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve("127.0.0.1:0", 2) }()

	var addr net.Addr
	for i := 0; i < 100; i++ {
		if s.listener != nil {
			addr = s.listener.Addr()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("server never started listening")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	welcomeLine, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	var welcome pipeline.Response
	if err := json.Unmarshal(welcomeLine, &welcome); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if welcome.Status != "success" {
		t.Fatalf("expected a successful welcome message, got %q", welcome.Status)
	}

	if _, err := conn.Write([]byte(`{"command":"meta","meta_command":"exit"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp pipeline.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("expected success status, got %q", resp.Status)
	}

	// The server closes the socket after a meta exit; the next read
	// must observe EOF rather than another response.
	if _, err := reader.ReadByte(); err == nil {
		t.Fatal("expected connection to be closed after meta exit")
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
}

func TestReapIdleClosesStaleConnections(t *testing.T) {
	s := New(Config{MaxConnections: 4, ConnectionTimeoutSeconds: 1}, testEngine(), zerolog.Nop())

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	c := newConnection(s, serverSide)
	c.mu.Lock()
	c.lastActivity = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	s.mu.Lock()
	s.active[c] = struct{}{}
	s.mu.Unlock()

	s.reapIdle()

	s.mu.Lock()
	_, stillActive := s.active[c]
	s.mu.Unlock()
	if stillActive {
		t.Fatal("expected idle connection to be reaped")
	}
}
