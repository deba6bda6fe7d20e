package server

import (
	"context"
	"strings"
)

type tenantCtxKey struct{}

func withTenant(ctx context.Context, tenant Tenant) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenant)
}

func currentTenant(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantCtxKey{}).(Tenant)
	return t, ok
}

type roleCtxKey struct{}

// withActorRole records the caller's role slug for the authz middleware.
// The role arrives on the X-Actor-Role header set by the fronting gateway.
func withActorRole(ctx context.Context, roleSlug string) context.Context {
	return context.WithValue(ctx, roleCtxKey{}, strings.ToLower(strings.TrimSpace(roleSlug)))
}

func currentActorRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleCtxKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

type actorCtxKey struct{}

func withActorID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, strings.TrimSpace(userID))
}

func currentActorID(ctx context.Context) string {
	v, _ := ctx.Value(actorCtxKey{}).(string)
	return v
}
