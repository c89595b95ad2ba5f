// Package identity resolves an admin id into the roles and permissions
// used for targeting. Resolution happens once per connection at join.
package identity

import (
	"context"

	"backoffice/internal/model"
)

// Resolver returns model.ErrIdentityNotFound for unknown admins.
type Resolver interface {
	Resolve(ctx context.Context, adminID string) (*model.Identity, error)
}
