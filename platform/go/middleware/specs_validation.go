package middleware

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
)

// ProblemWriter renders a validation failure.
type ProblemWriter func(w http.ResponseWriter, title, detail string, status int)

// OpenAPIValidator rejects requests that do not match the OpenAPI document before they reach handlers.
// Servers are cleared so the document validates requests on any host.
func OpenAPIValidator(spec *openapi3.T, writeProblem ProblemWriter) func(http.Handler) http.Handler {
	spec.Servers = nil

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			MultiError:         false,
		},
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			writeProblem(w, "Request does not match the API contract", message, statusCode)
		},
	})
}
