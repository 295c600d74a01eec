package auth

import "context"

type subjectKey struct{}

// WithSubject stores the authenticated user id for the request.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFromContext returns the authenticated user id, or "" when the
// request was not authenticated. Handlers use it for session ownership
// checks.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
