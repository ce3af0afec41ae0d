package httpapi

import (
	"context"

	"github.com/hetu-project/validator-coordinator/internal/principal"
)

type contextKey int

const (
	principalAddressKey contextKey = iota
	principalRoleKey
)

func withPrincipal(ctx context.Context, address string, role principal.Role) context.Context {
	ctx = context.WithValue(ctx, principalAddressKey, address)
	return context.WithValue(ctx, principalRoleKey, role)
}

func principalAddress(ctx context.Context) string {
	v, _ := ctx.Value(principalAddressKey).(string)
	return v
}

func principalRole(ctx context.Context) principal.Role {
	v, _ := ctx.Value(principalRoleKey).(principal.Role)
	return v
}
