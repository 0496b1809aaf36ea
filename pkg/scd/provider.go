package scd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/options"
	"github.com/goliatone/go-scmform/pkg/session"
)

// Endpoints locate the reference collections. Each URL may carry an
// {accountId} placeholder; without one the account id is appended as the
// last path segment.
type Endpoints struct {
	Schools   string
	Classes   string
	Divisions string
}

// DefaultEndpoints are the school management API collection routes.
var DefaultEndpoints = Endpoints{
	Schools:   "/api/schoolBranch/getAll/{accountId}",
	Classes:   "/api/schoolClass/getAll/{accountId}",
	Divisions: "/api/division/getAll/{accountId}",
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets the logger.
func WithProviderLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// Provider loads and holds the school, class and division collections.
type Provider struct {
	source    datasource.DataSource
	session   *session.Store
	endpoints Endpoints
	logger    zerolog.Logger

	mu      sync.RWMutex
	refs    References
	loading bool
}

var _ ReferenceSource = (*Provider)(nil)

// NewProvider returns an empty provider.
func NewProvider(source datasource.DataSource, store *session.Store, endpoints Endpoints, opts ...ProviderOption) *Provider {
	p := &Provider{
		source:    source,
		session:   store,
		endpoints: endpoints,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p
}

// Load fetches the three collections concurrently. A failed collection
// keeps its previous snapshot; the others are still replaced. The returned
// error joins every failure.
func (p *Provider) Load(ctx context.Context) error {
	if p.source == nil {
		return errors.New("scd: data source is required")
	}
	accountID, err := p.session.AccountID()
	if err != nil {
		return fmt.Errorf("scd: load references: %w", err)
	}

	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()

	var (
		schools, classes, divisions []Entity
		errs                        [3]error
		g                           errgroup.Group
	)
	g.Go(func() error {
		schools, errs[0] = p.fetch(ctx, "schools", p.endpoints.Schools, accountID)
		return nil
	})
	g.Go(func() error {
		classes, errs[1] = p.fetch(ctx, "classes", p.endpoints.Classes, accountID)
		return nil
	})
	g.Go(func() error {
		divisions, errs[2] = p.fetch(ctx, "divisions", p.endpoints.Divisions, accountID)
		return nil
	})
	_ = g.Wait()

	p.mu.Lock()
	if errs[0] == nil {
		p.refs.Schools = schools
	}
	if errs[1] == nil {
		p.refs.Classes = classes
	}
	if errs[2] == nil {
		p.refs.Divisions = divisions
	}
	p.loading = false
	p.mu.Unlock()

	return errors.Join(errs[0], errs[1], errs[2])
}

// Set replaces the snapshot directly.
func (p *Provider) Set(refs References) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = copyRefs(refs)
}

// References returns a copy of the current snapshot.
func (p *Provider) References() References {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyRefs(p.refs)
}

// Loading reports whether a Load is in flight.
func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) fetch(ctx context.Context, name, endpoint, accountID string) ([]Entity, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, nil
	}
	target := CollectionURL(endpoint, accountID)
	payload, err := p.source.Post(ctx, target, options.PagingEnvelope())
	if err != nil {
		p.logger.Warn().Err(err).Str("collection", name).Str("url", target).Msg("reference fetch failed")
		return nil, fmt.Errorf("scd: fetch %s: %w", name, err)
	}
	items := datasource.Items(payload)
	out := make([]Entity, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, Entity(obj))
		}
	}
	p.logger.Debug().Str("collection", name).Int("items", len(out)).Msg("references loaded")
	return out, nil
}

// CollectionURL resolves a reference endpoint for accountID.
func CollectionURL(endpoint, accountID string) string {
	endpoint = strings.TrimSpace(endpoint)
	if strings.Contains(endpoint, "{") {
		return options.Expand(endpoint, map[string]string{"accountId": accountID})
	}
	return strings.TrimRight(endpoint, "/") + "/" + accountID
}

func copyRefs(refs References) References {
	return References{
		Schools:   append([]Entity(nil), refs.Schools...),
		Classes:   append([]Entity(nil), refs.Classes...),
		Divisions: append([]Entity(nil), refs.Divisions...),
	}
}
