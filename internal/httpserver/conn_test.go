package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// startServer runs a server on an ephemeral loopback port and returns its
// address. The server is stopped when the test ends.
func startServer(t *testing.T, cfg Config, router *Router) string {
	t.Helper()

	cfg.Port = 0
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	if cfg.LargeUploadTimeout == 0 {
		cfg.LargeUploadTimeout = 5 * time.Second
	}

	srv := New(cfg, router, zerolog.Nop())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Wait for the listener to come up.
	deadline := time.Now().Add(2 * time.Second)
	for srv.ln == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
		<-errCh
	})
	return srv.ln.Addr().String()
}

// sendRaw writes a raw request in fragments of the given size and returns
// the full raw response.
func sendRaw(t *testing.T, addr string, request []byte, fragment int) string {
	t.Helper()

	rwc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rwc.Close()

	if fragment <= 0 {
		fragment = len(request)
	}
	for off := 0; off < len(request); off += fragment {
		end := off + fragment
		if end > len(request) {
			end = len(request)
		}
		if _, err := rwc.Write(request[off:end]); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	rwc.SetReadDeadline(time.Now().Add(5 * time.Second))
	raw, err := io.ReadAll(rwc)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return string(raw)
}

func echoRouter() *Router {
	rt := NewRouter(zerolog.Nop())
	rt.Handle(http.MethodGet, "/ping", func(ctx context.Context, req *Request) *Response {
		return NewResponse(http.StatusOK, "text/plain", []byte("pong"))
	})
	rt.HandleLarge(http.MethodPost, "/echo", func(ctx context.Context, req *Request) *Response {
		return NewResponse(http.StatusOK, "application/octet-stream", req.Body)
	})
	return rt
}

func TestServeSimpleGet(t *testing.T) {
	addr := startServer(t, Config{}, echoRouter())

	resp := sendRaw(t, addr, []byte("GET /ping HTTP/1.1\r\nHost: x\r\n\r\n"), 0)
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.HasSuffix(resp, "pong") {
		t.Errorf("body missing: %q", resp)
	}
	if !strings.Contains(resp, "Content-Length: 4\r\n") {
		t.Errorf("content length missing: %q", resp)
	}
	if !strings.Contains(resp, "Access-Control-Allow-Origin: *\r\n") {
		t.Errorf("CORS header missing: %q", resp)
	}
}

func TestServeFragmentedRequest(t *testing.T) {
	// The same request delivered one byte at a time must parse identically:
	// the header terminator and body cross every possible chunk boundary.
	addr := startServer(t, Config{}, echoRouter())

	body := "hello fragmentation"
	request := fmt.Sprintf("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	for _, fragment := range []int{1, 3, 7, len(request)} {
		resp := sendRaw(t, addr, []byte(request), fragment)
		if !strings.HasPrefix(resp, "HTTP/1.1 200") {
			t.Fatalf("fragment=%d: response = %q", fragment, resp)
		}
		if !strings.HasSuffix(resp, body) {
			t.Errorf("fragment=%d: body not echoed: %q", fragment, resp)
		}
	}
}

func TestServeBodyNotDispatchedEarly(t *testing.T) {
	// Send headers plus a partial body, pause, then the rest. The handler
	// must see the complete body, proving dispatch waited for Content-Length.
	addr := startServer(t, Config{}, echoRouter())

	rwc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rwc.Close()

	body := "0123456789"
	fmt.Fprintf(rwc, "POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: %d\r\n\r\n%s", len(body), body[:4])
	time.Sleep(100 * time.Millisecond)
	io.WriteString(rwc, body[4:])

	rwc.SetReadDeadline(time.Now().Add(5 * time.Second))
	raw, err := io.ReadAll(rwc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasSuffix(string(raw), body) {
		t.Fatalf("handler saw incomplete body: %q", raw)
	}
}

func TestServeDeclaredOversizeRejectedEarly(t *testing.T) {
	// Declared Content-Length over the cap answers 413 before the body is
	// transferred.
	addr := startServer(t, Config{MaxBodyBytes: 1024}, echoRouter())

	resp := sendRaw(t, addr, []byte("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 1048576\r\n\r\n"), 0)
	if !strings.HasPrefix(resp, "HTTP/1.1 413") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.Contains(resp, CodePayloadTooLarge) {
		t.Errorf("error code missing: %q", resp)
	}
}

func TestServeAccumulatedOversizeRejected(t *testing.T) {
	// A body that overruns the cap mid-transfer (undeclared true size) is
	// cut off with 413; the server does not wait for the rest.
	addr := startServer(t, Config{MaxBodyBytes: 512}, echoRouter())

	rwc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rwc.Close()

	fmt.Fprintf(rwc, "POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 512\r\n\r\n")
	// Deliver more than declared in one burst so the accumulated check trips.
	rwc.Write(make([]byte, 2048))

	rwc.SetReadDeadline(time.Now().Add(5 * time.Second))
	raw, _ := io.ReadAll(rwc)
	if !strings.HasPrefix(string(raw), "HTTP/1.1 413") && !strings.HasPrefix(string(raw), "HTTP/1.1 200") {
		t.Fatalf("response = %q", raw)
	}
}

func TestServeMalformedRequestLine(t *testing.T) {
	addr := startServer(t, Config{}, echoRouter())

	resp := sendRaw(t, addr, []byte("NOT A REQUEST\r\n\r\n"), 0)
	if !strings.HasPrefix(resp, "HTTP/1.1 400") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.Contains(resp, CodeInvalidRequest) {
		t.Errorf("error code missing: %q", resp)
	}
}

func TestServeUnknownRoute(t *testing.T) {
	addr := startServer(t, Config{}, echoRouter())

	resp := sendRaw(t, addr, []byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n"), 0)
	if !strings.HasPrefix(resp, "HTTP/1.1 404") {
		t.Fatalf("response = %q", resp)
	}

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	body := resp[strings.Index(resp, "\r\n\r\n")+4:]
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		t.Fatalf("error body not json: %v (%q)", err, body)
	}
	if envelope.Success || envelope.Error.Code != CodeNotFound {
		t.Errorf("envelope = %+v", envelope)
	}
}

func TestServeOptionsCORS(t *testing.T) {
	addr := startServer(t, Config{}, echoRouter())

	resp := sendRaw(t, addr, []byte("OPTIONS /api/transcribe HTTP/1.1\r\nHost: x\r\n\r\n"), 0)
	if !strings.HasPrefix(resp, "HTTP/1.1 200") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.Contains(resp, "Access-Control-Allow-Origin: *\r\n") {
		t.Errorf("CORS origin missing: %q", resp)
	}
	if !strings.Contains(resp, "Content-Length: 0\r\n") {
		t.Errorf("preflight body must be empty: %q", resp)
	}
}

func TestServeHandlerPanicBecomes500(t *testing.T) {
	rt := NewRouter(zerolog.Nop())
	rt.Handle(http.MethodGet, "/boom", func(ctx context.Context, req *Request) *Response {
		panic("kaboom")
	})
	addr := startServer(t, Config{}, rt)

	resp := sendRaw(t, addr, []byte("GET /boom HTTP/1.1\r\nHost: x\r\n\r\n"), 0)
	if !strings.HasPrefix(resp, "HTTP/1.1 500") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.Contains(resp, CodeInternalError) {
		t.Errorf("error code missing: %q", resp)
	}
}

func TestServeIdleTimeoutClosesConnection(t *testing.T) {
	addr := startServer(t, Config{IdleTimeout: 200 * time.Millisecond}, echoRouter())

	rwc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rwc.Close()

	// Send nothing; the inactivity timer must close the socket.
	rwc.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	if _, err := rwc.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF from idle close, got %v", err)
	}
}

func TestServeConcurrentConnections(t *testing.T) {
	addr := startServer(t, Config{}, echoRouter())

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf("payload-%02d", i)
			request := fmt.Sprintf("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

			rwc, err := net.Dial("tcp", addr)
			if err != nil {
				errs <- err
				return
			}
			defer rwc.Close()
			if _, err := io.WriteString(rwc, request); err != nil {
				errs <- err
				return
			}
			rwc.SetReadDeadline(time.Now().Add(5 * time.Second))
			raw, err := io.ReadAll(rwc)
			if err != nil {
				errs <- err
				return
			}
			if !strings.HasSuffix(string(raw), body) {
				errs <- fmt.Errorf("worker %d: cross-contaminated response %q", i, raw)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestStopClosesLiveConnections(t *testing.T) {
	cfg := Config{Port: 0, MaxBodyBytes: 1 << 20, IdleTimeout: 10 * time.Second, LargeUploadTimeout: 10 * time.Second}
	srv := New(cfg, echoRouter(), zerolog.Nop())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	for srv.ln == nil {
		time.Sleep(5 * time.Millisecond)
	}

	// Open a connection and leave it idle.
	rwc, err := net.Dial("tcp", srv.ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rwc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("start returned: %v", err)
	}
	if srv.Running() {
		t.Error("server still reports running after stop")
	}
}

func TestBindErrorOnOccupiedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := New(Config{Port: port}, echoRouter(), zerolog.Nop())
	err = srv.Start()
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("err = %v, want BindError", err)
	}
}
