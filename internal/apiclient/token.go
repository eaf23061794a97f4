// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package apiclient

import "context"

type tokenContextKey struct{}

// WithToken returns a context carrying the admin bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the admin bearer token, or "" if none is set.
func TokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(tokenContextKey{}).(string); ok {
		return token
	}
	return ""
}
