package identity

import (
	"context"

	"backoffice/internal/model"
	"backoffice/pkg/metrics"
)

// StaticResolver serves a fixed set of identities, for local runs
// without an identity service.
type StaticResolver struct {
	admins map[string]model.Identity
}

func NewStaticResolver(admins []model.Identity) *StaticResolver {
	m := make(map[string]model.Identity, len(admins))
	for _, a := range admins {
		m[a.AdminID] = a
	}
	return &StaticResolver{admins: m}
}

func (s *StaticResolver) Resolve(ctx context.Context, adminID string) (*model.Identity, error) {
	id, ok := s.admins[adminID]
	if !ok {
		metrics.IdentityLookupCount.WithLabelValues("static", "not_found").Inc()
		return nil, model.ErrIdentityNotFound
	}
	metrics.IdentityLookupCount.WithLabelValues("static", "found").Inc()
	return &id, nil
}
