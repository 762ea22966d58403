// Package health reports whether the query cache and its collaborators are
// usable.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// package ships checkers for the cache store (degraded while observed
// entries hold fetch errors) and for blob storage (a ping, or a save and
// load of a test blob). An Aggregator runs registered checkers
// concurrently under one timeout and folds their results into an overall
// status.
//
// # HTTP Endpoints
//
// RegisterHandlers mounts the health endpoints on a chi router:
//
//	r := chi.NewRouter()
//	health.RegisterHandlers(r, agg)
//	// GET /healthz  liveness, always OK
//	// GET /readyz   OK, DEGRADED or UNHEALTHY (503)
//	// GET /health   JSON results per checker
package health
