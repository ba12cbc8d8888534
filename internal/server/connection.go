package server

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minidb/minidb/internal/metrics"
	"github.com/minidb/minidb/internal/pipeline"
)

// Connection is one accepted socket's state: its peer, its session
// (database/table/transaction/auth), and the bookkeeping the monitor
// task needs to decide whether it has gone idle.
type Connection struct {
	ID      uuid.UUID
	conn    net.Conn
	srv     *Server
	session *pipeline.Session
	log     zerolog.Logger

	mu           sync.Mutex
	lastActivity time.Time

	closeOnce sync.Once
}

func newConnection(srv *Server, conn net.Conn) *Connection {
	id := uuid.New()
	return &Connection{
		ID:           id,
		conn:         conn,
		srv:          srv,
		session:      pipeline.NewSession(),
		log:          srv.log.With().Str("conn", id.String()[:8]).Logger(),
		lastActivity: time.Now(),
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) idleSince() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity)
}

// serve is the worker loop for one connection: send a JSON welcome
// identifying the connection, then read a newline-framed JSON
// document, execute it, write the response, repeat until the socket
// errors out or the statement closes it (meta exit).
func (c *Connection) serve() {
	defer c.close()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	welcome, err := pipeline.Encode(pipeline.OK(fmt.Sprintf("minidb welcome conn=%s", c.ID), 0), c.session.Format)
	if err != nil {
		return
	}
	if _, err := c.conn.Write(welcome); err != nil {
		return
	}

	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if len(line) == 0 {
				return
			}
		}
		c.touch()

		stmt, perr := pipeline.Parse(line)
		var resp *pipeline.Response
		closeAfter := false
		if perr != nil {
			resp = pipeline.Err(perr)
		} else {
			outcome := c.srv.engine.Execute(c.session, stmt)
			resp = outcome.Resp
			closeAfter = outcome.Close
			metrics.CommandsExecuted.WithLabelValues(stmt.Command, resp.Status).Inc()
		}

		out, eerr := pipeline.Encode(resp, c.session.Format)
		if eerr != nil {
			return
		}
		if _, werr := c.conn.Write(out); werr != nil {
			return
		}
		if closeAfter {
			return
		}
		if err != nil {
			return
		}
	}
}

// close rolls back any transaction the connection's session left open,
// unregisters it from the server's active set, and closes the socket.
// Safe to call from both the worker loop and the monitor task.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.srv.engine.RollbackSession(c.session)
		c.srv.unregister(c)
		_ = c.conn.Close()
	})
}
