package tracking

import "context"

type visitorContextKey struct{}

// WithVisitor attaches the resolved visitor to ctx.
func WithVisitor(ctx context.Context, v *Visitor) context.Context {
	return context.WithValue(ctx, visitorContextKey{}, v)
}

// VisitorFromContext returns the visitor tracked for the current request.
func VisitorFromContext(ctx context.Context) (*Visitor, bool) {
	v, ok := ctx.Value(visitorContextKey{}).(*Visitor)
	return v, ok && v != nil
}

// VisitorIDFromContext is a logger.ContextExtractor-compatible helper.
func VisitorIDFromContext(ctx context.Context) (string, bool) {
	v, ok := VisitorFromContext(ctx)
	if !ok {
		return "", false
	}
	return v.ID, true
}
