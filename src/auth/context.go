package auth

import (
	"context"
)

type contextKey string

const AdminKey contextKey = "admin"

func IsAdmin(ctx context.Context) bool {
	admin, ok := ctx.Value(AdminKey).(bool)
	return ok && admin
}
