// Package health exposes a bare liveness probe with no dependencies.
// Readiness, which needs the database, lives on the main service's
// /api/health endpoint.
package health

import "context"

type Response struct {
	Status string `json:"status"`
}

// Check reports that the process is up and serving requests.
//
//encore:api public method=GET path=/healthz
func Check(ctx context.Context) (*Response, error) {
	return &Response{Status: "ok"}, nil
}
