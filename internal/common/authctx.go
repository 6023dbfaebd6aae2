package common

import "context"

type ctxKey string

const agentKeyIDKey ctxKey = "auth/agent-key-id"

// WithAgentKeyID stores the authenticated agent key identifier on the context.
func WithAgentKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, agentKeyIDKey, id)
}

// AgentKeyID extracts the authenticated agent key identifier if present.
func AgentKeyID(ctx context.Context) (string, bool) {
	v := ctx.Value(agentKeyIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
