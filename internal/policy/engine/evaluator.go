package engine

import (
	"context"

	"school-backoffice/backend/internal/policy/domain"
)

// Evaluator decides whether a verified account may be issued a session.
type Evaluator interface {
	// EvaluateLogin returns the decision for input. On error the decision is a denial.
	EvaluateLogin(ctx context.Context, input domain.LoginInput) (domain.Decision, error)
}
