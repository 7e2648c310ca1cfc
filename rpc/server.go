package rpc

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/rainbow-dao/drn/internal/metrics"
)

const (
	headerContentType = "Content-Type"
	applicationJson   = "application/json"

	DefaultMaxBodyBytes int64 = 4194304 // 4MB
)

var allowedCORSHeaders = []string{"Accept", "Accept-Language", "Content-Language", "Origin", headerContentType}

type (
	// Registrar registers new HTTP handlers for given router.
	Registrar interface {
		Register(r *mux.Router)
	}

	// RegistrarFunc type is an adapter to allow the use of ordinary function as Registrar.
	RegistrarFunc func(r *mux.Router)

	API struct {
		Namespace string
		Service   interface{}
	}

	// ServerConfiguration is a common configuration for RPC servers.
	ServerConfiguration struct {
		// Address specifies the TCP address for the server to listen on, in the form "host:port".
		// Server isn't initialised if Address is empty.
		Address string

		// ReadTimeout is the maximum duration for reading the entire request, including the body. A zero or negative
		// value means there will be no timeout.
		ReadTimeout time.Duration

		// ReadHeaderTimeout is the amount of time allowed to read request headers. If ReadHeaderTimeout is zero, the
		// value of ReadTimeout is used. If both are zero, there is no timeout.
		ReadHeaderTimeout time.Duration

		// WriteTimeout is the maximum duration before timing out writes of the response. A zero or negative value means
		// there will be no timeout.
		WriteTimeout time.Duration

		// IdleTimeout is the maximum amount of time to wait for the next request when keep-alive is enabled. If
		// IdleTimeout is zero, the value of ReadTimeout is used. If both are zero, there is no timeout.
		IdleTimeout time.Duration

		// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header's keys
		// and values, including the request line. It does not limit the size of the request body. If zero,
		// http.DefaultMaxHeaderBytes is used.
		MaxHeaderBytes int

		// MaxBodyBytes controls the maximum number of bytes the server will read parsing the request body. If zero,
		// DefaultMaxBodyBytes is used.
		MaxBodyBytes int64

		// APIs contains is an array of enabled RPC services.
		APIs []API
	}
)

func DefaultServerConfiguration() *ServerConfiguration {
	return &ServerConfiguration{
		ReadTimeout:       3 * time.Second,
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxBodyBytes:      DefaultMaxBodyBytes,
	}
}

func (c *ServerConfiguration) IsAddressEmpty() bool {
	return strings.TrimSpace(c.Address) == ""
}

/*
NewHTTPServer returns server which serves the JSON-RPC APIs at /rpc (both
HTTP and WebSocket), REST endpoints of registrars under /api/v1 and, when
metrics are enabled, prometheus metrics at /metrics.
*/
func NewHTTPServer(conf *ServerConfiguration, log *slog.Logger, registrars ...Registrar) (*http.Server, error) {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(http.NotFound)
	restRouter := router.PathPrefix("/api/v1").Subrouter()
	restRouter.Use(
		handlers.CORS(handlers.AllowedHeaders(allowedCORSHeaders)),
		instrumentHTTP(log))
	for _, registrar := range registrars {
		registrar.Register(restRouter)
	}

	rpcServer := rpc.NewServer()
	for _, api := range conf.APIs {
		if err := rpcServer.RegisterName(api.Namespace, api.Service); err != nil {
			return nil, fmt.Errorf("failed to register API: %w", err)
		}
	}

	// RPC WebSocket handler
	router.Handle("/rpc", rpcServer.WebsocketHandler([]string{"*"})).Headers(
		"Connection", "Upgrade",
		"Upgrade", "websocket",
	)

	// RPC HTTP handler
	rpcRouter := router.PathPrefix("/rpc").Subrouter()
	rpcRouter.Handle("", rpcServer)
	rpcRouter.Use(handlers.CORS(handlers.AllowedHeaders(allowedCORSHeaders)))

	if metrics.Enabled() {
		router.Handle("/metrics", metrics.PrometheusHandler()).Methods(http.MethodGet)
	}

	maxBody := conf.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &http.Server{
		Addr:              conf.Address,
		ReadTimeout:       conf.ReadTimeout,
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		WriteTimeout:      conf.WriteTimeout,
		IdleTimeout:       conf.IdleTimeout,
		MaxHeaderBytes:    conf.MaxHeaderBytes,
		Handler:           http.MaxBytesHandler(router, maxBody),
	}, nil
}

func (f RegistrarFunc) Register(r *mux.Router) {
	f(r)
}
