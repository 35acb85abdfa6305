/*
Package api defines the HTTP API of the sealing service.

The service stores sealed values on node records and lets operators manage
them remotely. All bodies are JSON:

	PUT  /api/v1/nodes/{node}/values/{path}          SealRequest   -> SealResponse
	GET  /api/v1/nodes/{node}/values/{path}                        -> UnsealResponse
	POST /api/v1/nodes/{node}/values/{path}/rotate   RotateRequest -> RotateResponse
	GET  /api/v1/nodes/{node}/values/{path}/status                 -> StatusResponse
	POST /api/v1/keysets/resolve                     ResolveRequest -> ResolveResponse

Every route requires an "Authorization: Bearer <token>" header naming a
caller from the server's CallerToken list. Unseal and rotate also require the
caller's own directory key to be a recipient of the stored value.

Errors are returned as ErrorResponse with a status code derived from the
error: 400 for invalid input, 401 without a valid token, 403 when the caller
or the server identity is not a recipient, 404 for missing fields or principals, 409 for tampered envelopes,
422 for malformed or unsupported envelopes, 502 for directory failures and
503 when no record store is reachable.

The clients subpackage implements SealerProvider over HTTP.
*/
package api
