package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, the HTTP layer stays quiet
// apart from metrics.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// logRequest emits one line per finished inference request when a logger is
// installed.
func logRequest(r *http.Request, op, backend string, status int, start time.Time, err error) {
	if zlog == nil {
		return
	}
	ev := zlog.Info()
	if err != nil {
		ev = zlog.Warn().Err(err)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	ev.Str("op", op).
		Str("backend", backend).
		Int("status", status).
		Dur("dur", time.Since(start)).
		Msg(op + " end")
}
