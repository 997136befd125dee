package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"school-backoffice/backend/internal/policy/domain"
)

const loginQuery = "data.backoffice.login"

// Default Rego policy: only active accounts may log in.
const defaultRegoPolicy = `package backoffice.login

default allow := false
default deny_reason := "account_inactive"

allow if {
	input.account.status == "active"
}

deny_reason := "" if allow
`

// OPAEvaluator evaluates the login policy with an in-process OPA Rego engine.
// The query is prepared once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (the default policy when empty) and prepares the login query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"login.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile login policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(loginQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare login policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// NewOPAEvaluatorFromFile loads the Rego module at path; an empty path selects the default policy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read login policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// EvaluateLogin fails closed: any evaluation error or malformed result denies with DefaultDenyReason.
func (e *OPAEvaluator) EvaluateLogin(ctx context.Context, input domain.LoginInput) (domain.Decision, error) {
	deny := domain.Decision{Allow: false, DenyReason: domain.DefaultDenyReason}
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(input)))
	if err != nil {
		return deny, fmt.Errorf("eval login policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return deny, fmt.Errorf("login policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return deny, fmt.Errorf("login policy returned %T, want object", rs[0].Expressions[0].Value)
	}
	allow, _ := doc["allow"].(bool)
	if allow {
		return domain.Decision{Allow: true}, nil
	}
	if reason, ok := doc["deny_reason"].(string); ok && reason != "" {
		deny.DenyReason = reason
	}
	return deny, nil
}

// HealthCheck evaluates the prepared query against an active account. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	d, err := e.EvaluateLogin(ctx, domain.LoginInput{AccountStatus: "active"})
	if err != nil {
		return err
	}
	if !d.Allow {
		return fmt.Errorf("login policy denies an active account")
	}
	return nil
}

func buildInput(in domain.LoginInput) map[string]interface{} {
	return map[string]interface{}{
		"account": map[string]interface{}{
			"id":        in.AccountID,
			"tenant_id": in.TenantID,
			"status":    in.AccountStatus,
		},
		"client": map[string]interface{}{
			"ip":         in.IP,
			"user_agent": in.UserAgent,
		},
	}
}
