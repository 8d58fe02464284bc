package httpserver

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribehost/scribed/internal/metrics"
)

// connState is the per-connection lifecycle. Transitions only move forward;
// the single ReadingBody→Dispatched transition is the processed-at-most-once
// guard.
type connState int

const (
	stateReadingHeaders connState = iota
	stateReadingBody
	stateDispatched
	stateResponding
	stateClosed
)

const (
	// readChunkSize bounds each socket read. A header terminator or
	// multipart boundary may land split across two chunks; the scanner
	// always re-examines the whole accumulated buffer.
	readChunkSize = 64 * 1024

	// maxHeaderBytes caps the request head. A client that never sends
	// CRLFCRLF is answered with 400 instead of growing the buffer forever.
	maxHeaderBytes = 64 * 1024

	headerTerminator = "\r\n\r\n"
)

type connConfig struct {
	maxBodyBytes       int64
	idleTimeout        time.Duration
	largeUploadTimeout time.Duration
	heartbeatInterval  time.Duration
	processingCeiling  time.Duration
}

// conn owns one accepted socket: accumulated buffer, framing state, and the
// idle deadline. Exactly one goroutine runs serve per conn.
type conn struct {
	rwc    net.Conn
	router *Router
	cfg    connConfig
	log    zerolog.Logger

	state         connState
	buf           []byte
	req           *Request
	bodyStart     int
	contentLength int64
	large         bool
	created       time.Time
}

func newConn(rwc net.Conn, router *Router, cfg connConfig, log zerolog.Logger) *conn {
	return &conn{
		rwc:     rwc,
		router:  router,
		cfg:     cfg,
		log:     log.With().Str("remote", rwc.RemoteAddr().String()).Logger(),
		state:   stateReadingHeaders,
		created: time.Now(),
	}
}

// serve drives the state machine: bounded reads into the buffer, framing
// advance after every read, one dispatch, one response, close.
func (c *conn) serve(ctx context.Context) {
	defer c.close()

	chunk := make([]byte, readChunkSize)
	for c.state == stateReadingHeaders || c.state == stateReadingBody {
		// Inactivity deadline, reset on every forward-progress event.
		if err := c.rwc.SetReadDeadline(time.Now().Add(c.readTimeout())); err != nil {
			return
		}

		n, err := c.rwc.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if resp := c.advance(); resp != nil {
				c.respond(resp)
				return
			}
			if c.state == stateDispatched {
				c.respond(c.dispatch(ctx))
				return
			}
		}
		if err != nil {
			// Timeout, peer close, or socket error before a complete
			// request. There is nothing well-formed to answer.
			c.log.Debug().Err(err).
				Int("buffered", len(c.buf)).
				Dur("age", time.Since(c.created)).
				Msg("connection terminated before dispatch")
			return
		}
	}
}

// advance re-examines the accumulated buffer after a read. It returns a
// response for protocol errors and cap violations, and moves the state to
// stateDispatched when the request is complete.
func (c *conn) advance() *Response {
	if c.state == stateReadingHeaders {
		idx := bytes.Index(c.buf, []byte(headerTerminator))
		if idx < 0 {
			if len(c.buf) > maxHeaderBytes {
				return Error(http.StatusBadRequest, CodeInvalidRequest, "request head too large")
			}
			return nil
		}

		req, err := parseRequestHead(c.buf[:idx])
		if err != nil {
			return Error(http.StatusBadRequest, CodeInvalidRequest, err.Error())
		}
		req.RemoteAddr = c.rwc.RemoteAddr().String()

		cl, err := req.ContentLength()
		if err != nil {
			return Error(http.StatusBadRequest, CodeInvalidRequest, err.Error())
		}

		c.req = req
		c.contentLength = cl
		c.bodyStart = idx + len(headerTerminator)
		c.large = c.router.largeUpload(req.Method, req.Path)

		// Declared oversize short-circuits before the body is read.
		if cl > c.cfg.maxBodyBytes {
			return Error(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body exceeds limit")
		}

		if cl == 0 {
			// Header-only request dispatches immediately.
			c.state = stateDispatched
			return nil
		}
		c.state = stateReadingBody
	}

	// stateReadingBody: accumulate until declared length, subject to the cap.
	have := int64(len(c.buf) - c.bodyStart)
	if have > c.cfg.maxBodyBytes {
		return Error(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body exceeds limit")
	}
	if have >= c.contentLength {
		c.state = stateDispatched
	}
	return nil
}

// dispatch hands the framed request to the router exactly once. Large-upload
// routes run under the processing ceiling and keep the socket deadline alive
// with heartbeats while the handler works.
func (c *conn) dispatch(ctx context.Context) *Response {
	c.req.Body = c.buf[c.bodyStart : c.bodyStart+int(c.contentLength)]

	hctx := ctx
	cancel := context.CancelFunc(func() {})
	if c.large && c.cfg.processingCeiling > 0 {
		hctx, cancel = context.WithTimeout(ctx, c.cfg.processingCeiling)
	}
	defer cancel()

	stopHeartbeat := c.startHeartbeat()
	defer stopHeartbeat()

	start := time.Now()
	resp := c.router.Dispatch(hctx, c.req)

	// Unmatched paths share one label to keep metric cardinality bounded.
	metricPath := c.req.Path
	if resp.Status == http.StatusNotFound {
		metricPath = "unmatched"
	}
	metrics.ObserveRequest(c.req.Method, metricPath, resp.Status, time.Since(start), len(c.req.Body))
	c.log.Debug().
		Str("method", c.req.Method).
		Str("path", c.req.Path).
		Int("status", resp.Status).
		Int("body_bytes", len(c.req.Body)).
		Dur("duration_ms", time.Since(start)).
		Msg("request")
	return resp
}

// startHeartbeat extends the connection deadline periodically during long
// processing on large-upload routes, so multi-hour audio is not cut down by
// the inactivity timer while the engine runs.
func (c *conn) startHeartbeat() func() {
	if !c.large || c.cfg.heartbeatInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.cfg.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.rwc.SetDeadline(time.Now().Add(c.cfg.largeUploadTimeout))
			}
		}
	}()
	return func() { close(done) }
}

// respond writes the terminal response. Write failures are logged; the state
// advances to Closed regardless.
func (c *conn) respond(resp *Response) {
	c.state = stateResponding
	c.rwc.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := resp.write(c.rwc); err != nil {
		c.log.Warn().Err(err).Int("status", resp.Status).Msg("response write failed")
	}
	c.state = stateClosed
}

// close releases the socket; deadlines die with it.
func (c *conn) close() {
	c.state = stateClosed
	c.rwc.Close()
}

func (c *conn) readTimeout() time.Duration {
	if c.large {
		return c.cfg.largeUploadTimeout
	}
	return c.cfg.idleTimeout
}
