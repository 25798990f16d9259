package middleware

import "context"

type contextKey string

const (
	ctxSubjectID   contextKey = "subject_id"
	ctxEmail       contextKey = "email"
	ctxRequestMeta contextKey = "request_meta"
)

// requestMeta is installed by Logging so inner middleware can report facts
// (the verified subject, the access outcome) back to the completion log line.
type requestMeta struct {
	subjectID string
	denial    string
}

func withRequestMeta(ctx context.Context) (context.Context, *requestMeta) {
	meta := &requestMeta{}
	return context.WithValue(ctx, ctxRequestMeta, meta), meta
}

func metaFromContext(ctx context.Context) *requestMeta {
	if ctx == nil {
		return nil
	}
	meta, _ := ctx.Value(ctxRequestMeta).(*requestMeta)
	return meta
}

func noteSubject(ctx context.Context, subjectID string) {
	if meta := metaFromContext(ctx); meta != nil {
		meta.subjectID = subjectID
	}
}

func noteDenial(ctx context.Context, reason string) {
	if meta := metaFromContext(ctx); meta != nil {
		meta.denial = reason
	}
}

// SubjectIDFromContext returns the verified principal id bound by Auth.
func SubjectIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSubjectID).(string); ok {
		return v
	}
	return ""
}

// EmailFromContext returns the verified principal email bound by Auth.
func EmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxEmail).(string); ok {
		return v
	}
	return ""
}

// WithPrincipal injects the verified identity into the context.
func WithPrincipal(ctx context.Context, subjectID, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	noteSubject(ctx, subjectID)
	ctx = context.WithValue(ctx, ctxSubjectID, subjectID)
	return context.WithValue(ctx, ctxEmail, email)
}
