package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"backoffice/internal/model"
	"backoffice/pkg/circuitbreaker"
	"backoffice/pkg/metrics"
)

// HTTPResolver calls the admin identity service:
// GET {baseURL}/internal/admins/{id}.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewHTTPResolver(baseURL string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *HTTPResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
		logger:  logger,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, adminID string) (*model.Identity, error) {
	var id *model.Identity
	err := r.breaker.Execute(func() error {
		var err error
		id, err = r.fetch(ctx, adminID)
		return err
	}, isNotFound)

	switch {
	case err == nil:
		metrics.IdentityLookupCount.WithLabelValues("service", "found").Inc()
		return id, nil
	case errors.Is(err, model.ErrIdentityNotFound):
		metrics.IdentityLookupCount.WithLabelValues("service", "not_found").Inc()
		return nil, err
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.IdentityLookupCount.WithLabelValues("service", "breaker_open").Inc()
		r.logger.Warn("Identity service breaker open", zap.String("admin_id", adminID))
		return nil, fmt.Errorf("failed to resolve admin %s: %w", adminID, err)
	default:
		metrics.IdentityLookupCount.WithLabelValues("service", "error").Inc()
		r.logger.Error("Identity lookup failed", zap.String("admin_id", adminID), zap.Error(err))
		return nil, fmt.Errorf("failed to resolve admin %s: %w", adminID, err)
	}
}

func (r *HTTPResolver) fetch(ctx context.Context, adminID string) (*model.Identity, error) {
	endpoint := r.baseURL + "/internal/admins/" + url.PathEscape(adminID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, model.ErrIdentityNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var id model.Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	switch id.AdminID {
	case "":
		id.AdminID = adminID
	case adminID:
	default:
		return nil, fmt.Errorf("identity service answered for admin %q, asked for %q", id.AdminID, adminID)
	}
	return &id, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrIdentityNotFound)
}
