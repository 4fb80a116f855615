package coord

import "context"

type actorKey struct{}

// WithActor returns a context carrying the name of the actor running on it.
// The driver sets this for every actor so resource hooks can tell which
// party is calling.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor name stored in ctx, or "" if none.
func ActorFrom(ctx context.Context) string {
	if s, ok := ctx.Value(actorKey{}).(string); ok {
		return s
	}
	return ""
}
