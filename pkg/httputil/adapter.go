package httputil

import (
	"net/http"

	"github.com/edgeflare/pgrest/pkg/client"
)

// QueryFunc builds the query for one incoming request, typically from path
// or query parameters.
type QueryFunc func(r *http.Request) *client.QueryBuilder

// ResultHandler executes the built query and renders the normalized result
// as JSON. A successful empty result renders as an empty collection with
// 200, never as an error.
func ResultHandler(fn QueryFunc, opts ...client.ExecOption) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fn(r).Execute(r.Context(), opts...)
		if err != nil {
			// builder misuse
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if res.Err != nil {
			Error(w, StatusFromError(res.Err), res.Err.Message)
			return
		}
		JSON(w, http.StatusOK, res.Data)
	}
}

// StatusFromError maps an execution failure onto an HTTP status code.
func StatusFromError(err *client.Error) int {
	switch err.Kind {
	case client.KindValidation:
		return http.StatusBadRequest
	case client.KindNotFound:
		return http.StatusNotFound
	case client.KindMultipleRows:
		return http.StatusConflict
	case client.KindTimeout:
		return http.StatusGatewayTimeout
	case client.KindCancelled:
		// nginx convention for client-closed-request
		return 499
	case client.KindServer:
		if err.StatusCode > 0 {
			return err.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
