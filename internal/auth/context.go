package auth

import "context"

// Operator is the authenticated caller of an operator endpoint.
type Operator struct {
	ID      string
	Role    string
	TokenID string
}

type ctxKey struct{}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, ctxKey{}, op)
}

func OperatorFrom(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(ctxKey{}).(Operator)
	return op, ok && op.ID != ""
}

// Actor names the caller in audit events: the operator id, or fallback
// when the request carries no operator.
func Actor(ctx context.Context, fallback string) string {
	if op, ok := OperatorFrom(ctx); ok {
		return op.ID
	}
	return fallback
}
