/*
Package httpserver implements the HTTP server of the sealing service.

The server stores sealed values on node records through a lifecycle
controller and decrypts them with its own identity on request. Operators use
it to seal, read and rotate values without distributing the service key.

API routes require a bearer token from HTTPServerConfig.Callers; a token
names a directory user. Unseal and rotate are only served to callers whose
own key is a recipient of the stored value.

# API Endpoints

  - PUT /api/v1/nodes/{node}/values/{path} - Seal a value for a policy
  - GET /api/v1/nodes/{node}/values/{path} - Unseal a value
  - POST /api/v1/nodes/{node}/values/{path}/rotate - Re-encrypt for a new policy
  - GET /api/v1/nodes/{node}/values/{path}/status - Describe a stored value
  - POST /api/v1/keysets/resolve - Preview the recipients of a policy

With ServeDirectory enabled the configured directory is exposed as well:

  - POST /api/v1/directory/search/{kind} - Search principals
  - GET /api/v1/directory/principals/{kind}/{id} - Look up a principal key

# Health Endpoints

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

Errors are mapped to status codes by RequestError; see package api.

# Usage

	controller := lifecycle.NewController(log, resolver, codec, identity, store, hosts)
	handler := httpserver.NewHandler(controller, resolver, users, log)

	callers, err := api.LoadCallerTokens("tokens.yaml")
	if err != nil {
		return err
	}
	server, err := httpserver.New(&api.HTTPServerConfig{
		ListenAddr:  ":8080",
		MetricsAddr: ":8090",
		Callers:     callers,
		Log:         log,
	}, handler)
	if err != nil {
		return err
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
