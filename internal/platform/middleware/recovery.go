package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/inkbook/inkbook/internal/platform/apperr"
)

// Recovery turns a handler panic into an internal error and logs it with the
// request and trace ids. http.ErrAbortHandler is re-raised for net/http.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				cause, ok := r.(error)
				if !ok {
					cause = fmt.Errorf("%v", r)
				}

				req := c.Request()
				rid, _ := c.Get("request_id").(string)
				withTrace(req.Context(), logger.Error().Err(cause)).
					Str("request_id", rid).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				err = apperr.Wrap(apperr.KindInternal, "internal server error", cause)
			}()
			return next(c)
		}
	}
}
