package core

import "context"

type contextKey string

const ctxKeyOperator contextKey = "audit_operator"

// Operator identifies who triggered an import or administrative action.
// Empty fields are filled from the running process when the audit record is written.
type Operator struct {
	User      string `json:"user,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ContextWithOperator attaches op to ctx for audit logging.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, ctxKeyOperator, op)
}

// OperatorFromContext extracts the operator, if any.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(ctxKeyOperator).(Operator)
	return op, ok
}
