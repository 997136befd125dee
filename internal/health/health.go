// Package health reports readiness of the auth core's backing services for /healthz and grpc.health.v1.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger is implemented by the Redis revocation cache.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker is implemented by the OPA login policy evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs readiness probes. Nil dependencies are skipped.
type Checker struct {
	db      Pinger
	cache   CachePinger
	policy  PolicyChecker
	timeout time.Duration
}

// NewChecker returns a Checker over the given dependencies. Any of them may be nil.
func NewChecker(db Pinger, cache CachePinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, cache: cache, policy: policy, timeout: 2 * time.Second}
}

// Status is the result of one readiness check, keyed by dependency.
type Status struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Check probes each dependency. The cache is advisory: a failing cache is reported but does not make
// the service unready, since revocation checks fall back to the database.
func (c *Checker) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	st := Status{Ready: true, Checks: map[string]string{}}
	if c.db != nil {
		st.Checks["database"] = result(c.db.PingContext(ctx))
		st.Ready = st.Ready && st.Checks["database"] == "ok"
	}
	if c.policy != nil {
		st.Checks["policy"] = result(c.policy.HealthCheck(ctx))
		st.Ready = st.Ready && st.Checks["policy"] == "ok"
	}
	if c.cache != nil {
		st.Checks["cache"] = result(c.cache.Ping(ctx))
	}
	return st
}

func result(err error) string {
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return "ok"
}

// ServeHTTP answers 200 when ready and 503 otherwise, with the per-dependency results as JSON.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := c.Check(r.Context())
	code := http.StatusOK
	if !st.Ready {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Printf("health: encode: %v", err)
	}
}

// Watch updates the serving status of srv every interval until ctx is done.
func (c *Checker) Watch(ctx context.Context, srv *health.Server, interval time.Duration) {
	c.update(ctx, srv)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.update(ctx, srv)
		}
	}
}

func (c *Checker) update(ctx context.Context, srv *health.Server) {
	st := c.Check(ctx)
	serving := healthpb.HealthCheckResponse_SERVING
	if !st.Ready {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
		log.Printf("health: not ready: %v", st.Checks)
	}
	srv.SetServingStatus("", serving)
}
