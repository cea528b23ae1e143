package auth

import "context"

type profileKeyType struct{}

var profileKey profileKeyType

// WithProfile attaches a verified profile to the request context.
func WithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// FromContext returns the verified profile, or nil when the request was not
// authenticated.
func FromContext(ctx context.Context) *Profile {
	p, _ := ctx.Value(profileKey).(*Profile)
	return p
}
