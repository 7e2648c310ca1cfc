package rpc

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/rainbow-dao/drn/internal/metrics"
	"github.com/rainbow-dao/drn/logger"
)

/*
instrumentHTTP returns http middleware which instruments the incoming handler with two metrics:
  - number of calls per route and status code class;
  - request duration per route.
*/
func instrumentHTTP(log *slog.Logger) func(next http.Handler) http.Handler {
	if !metrics.Enabled() {
		return passthroughMW
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			route := "unknown"
			if cr := mux.CurrentRoute(req); cr != nil {
				if path, err := cr.GetPathTemplate(); err != nil {
					log.WarnContext(req.Context(), "reading route path", logger.Error(err))
				} else {
					route = metricName(path)
				}
			}

			start := time.Now()
			rsp := newStatusResponseWriter(w)
			next.ServeHTTP(rsp, req)

			metrics.GetOrRegisterCounter(fmt.Sprintf("drn/rest/%s/%dxx", route, rsp.statusCode/100)).Inc(1)
			metrics.GetOrRegisterTimer("drn/rest/" + route + "/duration").UpdateSince(start)
		})
	}
}

// metricName turns route template "/api/v1/relayers/{address}" into "api_v1_relayers_address".
func metricName(path string) string {
	r := strings.NewReplacer("/", "_", "{", "", "}", "")
	return strings.Trim(r.Replace(path), "_")
}

/*
passthroughMW is NOP middleware.
*/
func passthroughMW(next http.Handler) http.Handler {
	return next
}

/*
statusResponseWriter is a http.ResponseWriter wrapper which allows to capture
status code of the response.
*/
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func newStatusResponseWriter(w http.ResponseWriter) *statusResponseWriter {
	return &statusResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (mw *statusResponseWriter) WriteHeader(statusCode int) {
	mw.ResponseWriter.WriteHeader(statusCode)

	if !mw.headerWritten {
		mw.statusCode = statusCode
		mw.headerWritten = true
	}
}

func (mw *statusResponseWriter) Write(b []byte) (int, error) {
	mw.headerWritten = true
	return mw.ResponseWriter.Write(b)
}

func (mw *statusResponseWriter) Unwrap() http.ResponseWriter {
	return mw.ResponseWriter
}
