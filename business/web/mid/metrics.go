package mid

import (
	"context"
	"net/http"

	"github.com/chaos0211/block-dt/business/sys/metrics"
	"github.com/chaos0211/block-dt/foundation/web"
)

// Metrics updates program counters.
func Metrics(m *metrics.Metrics) web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Errors has already responded so the status code is known.
			status := http.StatusOK
			if v, verr := web.GetValues(ctx); verr == nil && v.StatusCode != 0 {
				status = v.StatusCode
			}

			m.AddRequest(r.Method, status)
			if err != nil || status >= http.StatusBadRequest {
				m.AddError()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
