/*
Package clients provides client libraries for the sealing service API.

SealerClient implements api.SealerProvider over HTTP. Non-2xx responses are
returned as *APIError carrying the status code and the server's message, so
callers can tell a missing value (404) from a value they may not read (403).

	client := &clients.SealerClient{ServerAddr: "http://sealer.internal:8080"}
	resp, err := client.Seal("web-01", "secrets.db_password", "hunter2", policy)

MockSealerProvider is a testify mock of api.SealerProvider.
*/
package clients
