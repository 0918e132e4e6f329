package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrEthical07/authcore"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

type server struct {
	engine *authcore.Engine
	todos  todoRepository
	logger logrus.FieldLogger
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type todoCreate struct {
	Title string     `json:"title"`
	DDL   *time.Time `json:"ddl,omitempty"`
}

type todoPage struct {
	Items []todo `json:"items"`
	Total int    `json:"total"`
	Skip  int    `json:"skip"`
	Limit int    `json:"limit"`
}

// newHandler wires the HTTP surface: auth routes, owner-scoped todos,
// health and, when enabled, Prometheus metrics. A non-nil tel traces every
// request.
func newHandler(cfg serverConfig, engine *authcore.Engine, todos todoRepository, tel *telemetry, logger logrus.FieldLogger) http.Handler {
	s := &server{engine: engine, todos: todos, logger: logger}

	r := mux.NewRouter()
	r.Use(
		recoverPanics(logger),
		requestTiming(logger, cfg.SlowRequest),
		middleware.SecurityHeaders,
		middleware.ClientID(cfg.TrustProxyHeaders),
	)

	limit := func(route string) func(http.Handler) http.Handler {
		return middleware.RateLimit(engine, route)
	}
	guard := middleware.RequireIdentity(engine)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.Handle("/auth/register", chain(http.HandlerFunc(s.register), limit(authcore.RouteRegister))).Methods(http.MethodPost)
	api.Handle("/auth/login", chain(http.HandlerFunc(s.login), limit(authcore.RouteLogin))).Methods(http.MethodPost)
	api.Handle("/auth/me", chain(http.HandlerFunc(s.me), limit(authcore.RouteMe), guard)).Methods(http.MethodGet)
	api.Handle("/todos", chain(http.HandlerFunc(s.listTodos), limit(authcore.RouteTodosList), guard)).Methods(http.MethodGet)
	api.Handle("/todos", chain(http.HandlerFunc(s.createTodo), limit(authcore.RouteTodosCreate), guard)).Methods(http.MethodPost)
	api.Handle("/todos/{id:[0-9]+}", chain(http.HandlerFunc(s.getTodo), limit(authcore.RouteTodosGet), guard)).Methods(http.MethodGet)
	api.Handle("/todos/{id:[0-9]+}", chain(http.HandlerFunc(s.updateTodo), limit(authcore.RouteTodosUpdate), guard)).Methods(http.MethodPut)
	api.Handle("/todos/{id:[0-9]+}", chain(http.HandlerFunc(s.deleteTodo), limit(authcore.RouteTodosDelete), guard)).Methods(http.MethodDelete)

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promexport.NewExporter(engine).Handler()).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
	})

	h := c.Handler(r)
	if tel == nil {
		return h
	}
	return otelhttp.NewHandler(h, "authcore",
		otelhttp.WithTracerProvider(tel.tracerProvider),
		otelhttp.WithMeterProvider(tel.meterProvider),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// chain applies mw so that the first element is the outermost wrapper.
func chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decodeBody(w, r, &body) {
		return
	}

	id, err := s.engine.Register(r.Context(), body.Email, body.Password)
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, id)
	case errors.Is(err, authcore.ErrEmailAlreadyRegistered):
		middleware.WriteError(w, http.StatusBadRequest, "Email has been registered")
	case errors.Is(err, authcore.ErrInvalidRegistration):
		middleware.WriteError(w, http.StatusBadRequest, "Invalid email or password")
	default:
		s.internalError(w, r, err)
	}
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decodeBody(w, r, &body) {
		return
	}

	clientID := authcore.ClientIDFromContext(r.Context())
	tok, err := s.engine.Login(r.Context(), clientID, body.Email, body.Password)
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, tok)
	case errors.Is(err, authcore.ErrAccountLockedOut):
		middleware.WriteError(w, http.StatusTooManyRequests, "Too many failed attempts")
	case errors.Is(err, authcore.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		middleware.WriteError(w, http.StatusUnauthorized, "Incorrect email or password")
	default:
		s.internalError(w, r, err)
	}
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, id)
}

func (s *server) listTodos(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	skip, err := queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "skip must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "limit must be between 1 and 100")
		return
	}

	items, total, err := s.todos.List(r.Context(), id.ID, skip, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, todoPage{Items: items, Total: total, Skip: skip, Limit: limit})
}

func (s *server) createTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	var body todoCreate
	if !decodeBody(w, r, &body) {
		return
	}

	t, err := s.todos.Create(r.Context(), id.ID, body.Title, body.DDL)
	if err != nil {
		s.todoError(w, r, 0, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, t)
}

func (s *server) getTodo(w http.ResponseWriter, r *http.Request) {
	owner, todoID, ok := todoTarget(w, r)
	if !ok {
		return
	}
	t, err := s.todos.Get(r.Context(), owner, todoID)
	if err != nil {
		s.todoError(w, r, todoID, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

func (s *server) updateTodo(w http.ResponseWriter, r *http.Request) {
	owner, todoID, ok := todoTarget(w, r)
	if !ok {
		return
	}
	var patch todoPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	t, err := s.todos.Update(r.Context(), owner, todoID, patch)
	if err != nil {
		s.todoError(w, r, todoID, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

func (s *server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	owner, todoID, ok := todoTarget(w, r)
	if !ok {
		return
	}
	if err := s.todos.Delete(r.Context(), owner, todoID); err != nil {
		s.todoError(w, r, todoID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// todoTarget resolves the caller and the {id} path variable.
func todoTarget(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
		return "", 0, false
	}
	todoID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "id must be an integer")
		return "", 0, false
	}
	return id.ID, todoID, true
}

func (s *server) todoError(w http.ResponseWriter, r *http.Request, todoID int64, err error) {
	switch {
	case errors.Is(err, errInvalidTodo):
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errTodoNotFound):
		middleware.WriteError(w, http.StatusNotFound, fmt.Sprintf("Todo with id %d not found", todoID))
	default:
		s.internalError(w, r, err)
	}
}

// internalError answers with the status StatusCode assigns to err. Only
// backend and unexpected failures reach this path, so they are logged.
func (s *server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	status := authcore.StatusCode(err)
	s.logger.WithError(err).WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": status,
	}).Error("request failed")

	if status == http.StatusServiceUnavailable {
		middleware.WriteError(w, status, "Service unavailable")
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
