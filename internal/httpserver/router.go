package httpserver

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Handler processes a fully framed request. The context carries the route's
// processing ceiling for large-upload routes; handlers must honor
// cancellation on every blocking step.
type Handler func(ctx context.Context, req *Request) *Response

type route struct {
	handler     Handler
	largeUpload bool
}

// Router maps (method, path) pairs to handlers. OPTIONS requests on any path
// answer the CORS preflight; everything unmatched is 404.
type Router struct {
	routes map[string]route
	log    zerolog.Logger
}

// NewRouter creates an empty dispatch table.
func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		routes: make(map[string]route),
		log:    log.With().Str("component", "router").Logger(),
	}
}

// Handle registers a handler for an exact method and path.
func (rt *Router) Handle(method, path string, h Handler) {
	rt.routes[method+" "+path] = route{handler: h}
}

// HandleLarge registers a handler on the large-upload policy: extended
// timeout ceiling, chunk-tolerant body accumulation, keep-alive heartbeats
// while the handler runs.
func (rt *Router) HandleLarge(method, path string, h Handler) {
	rt.routes[method+" "+path] = route{handler: h, largeUpload: true}
}

// largeUpload reports whether the route for this request head uses the
// large-upload connection policy. Unmatched routes use the ordinary policy.
func (rt *Router) largeUpload(method, path string) bool {
	return rt.routes[method+" "+path].largeUpload
}

// Dispatch routes one request to its handler. Panics in handlers become 500
// responses; the connection is never left unterminated.
func (rt *Router) Dispatch(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if rv := recover(); rv != nil {
			rt.log.Error().Interface("panic", rv).Str("path", req.Path).Msg("handler panicked")
			resp = Error(http.StatusInternalServerError, CodeInternalError, "internal server error")
		}
	}()

	if req.Method == http.MethodOptions {
		return NewResponse(http.StatusOK, "text/plain", nil)
	}

	r, ok := rt.routes[req.Method+" "+req.Path]
	if !ok {
		return Error(http.StatusNotFound, CodeNotFound, "no route for "+req.Method+" "+req.Path)
	}
	return r.handler(ctx, req)
}
