// Package api serves the cardio viewing session over HTTP and pushes state
// changes to the browser over a websocket
package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/olahol/melody"
	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/logger"
)

// HandlerParams is what an endpoint gets to work with
type HandlerParams struct {
	Session    *Session
	PathParams map[string]string
	Request    *http.Request
}

// HandlerFunc returns a value to be served as JSON, or an error
type HandlerFunc func(params HandlerParams) (interface{}, error)

// StreamHandlerFunc writes its own response body
type StreamHandlerFunc func(params HandlerParams, w http.ResponseWriter) error

// ServerOptions configure a Server
type ServerOptions struct {
	AllowedOrigins []string

	// Sentry wraps every handler in the Sentry HTTP integration
	Sentry bool
}

// Server routes the session API
type Server struct {
	Router  *mux.Router
	session *Session
	log     logger.ILogger
	melody  *melody.Melody
	ws      *WSHandler
	opts    ServerOptions
	routes  map[string]bool
}

// NewServer registers every endpoint and makes the websocket hub the
// session's listener
func NewServer(session *Session, log logger.ILogger, opts ServerOptions) *Server {
	m := melody.New()
	s := &Server{
		Router:  mux.NewRouter(),
		session: session,
		log:     log,
		melody:  m,
		ws:      MakeWSHandler(m, session, log),
		opts:    opts,
		routes:  map[string]bool{},
	}
	session.SetListener(s.ws.Broadcast)
	s.Router.Use(PrometheusMiddleware)
	registerEndpoints(s)
	return s
}

// Handler is the full HTTP handler with CORS and request logging
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router
	h = handlers.LoggingHandler(logWriter{s.log}, h)
	return handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"}),
		handlers.AllowedOrigins(s.opts.AllowedOrigins),
	)(h)
}

// Close disconnects every websocket client
func (s *Server) Close() error {
	return s.melody.Close()
}

func (s *Server) AddJSONHandler(path, method string, fn HandlerFunc) {
	s.addHandler(path, method, jsonHandler{server: s, handler: fn})
}

func (s *Server) AddStreamHandler(path, method string, fn StreamHandlerFunc) {
	s.addHandler(path, method, streamHandler{server: s, handler: fn})
}

func (s *Server) addHandler(path, method string, handler http.Handler) {
	methodRoute := method + path
	if s.routes[methodRoute] {
		s.log.Errorf("Path handler already defined for: %v, method: %v", path, method)
		return
	}
	s.routes[methodRoute] = true

	if s.opts.Sentry {
		sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
		handler = sentryHandler.Handle(handler)
	}
	s.Router.Handle(path, handler).Methods(method)
}

func (s *Server) params(r *http.Request) HandlerParams {
	pathParams := mux.Vars(r)
	if pathParams == nil {
		pathParams = map[string]string{}
	}
	for q, v := range r.URL.Query() {
		if len(v) > 0 {
			pathParams[q] = v[0]
		}
	}
	return HandlerParams{Session: s.session, PathParams: pathParams, Request: r}
}

type jsonHandler struct {
	server  *Server
	handler HandlerFunc
}

func (h jsonHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.handler(h.server.params(r))
	if err != nil {
		logHandlerErrors(err, h.server.log, w, r)
		return
	}
	toJSON(w, resp)
}

type streamHandler struct {
	server  *Server
	handler StreamHandlerFunc
}

func (h streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.handler(h.server.params(r), w); err != nil {
		logHandlerErrors(err, h.server.log, w, r)
	}
}

func toJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		v = map[string]interface{}{}
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// readJSON decodes the request body into v
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return MakeBadRequestError(errors.Wrap(err, "invalid request body"))
	}
	return nil
}

// logWriter feeds the access log into the debug log
type logWriter struct {
	log logger.ILogger
}

func (l logWriter) Write(p []byte) (int, error) {
	l.log.Debugf("%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}
