package purchasable

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/purchasable/domain"
)

// Registry dispatches item operations to the adapter registered for the line's kind.
type Registry struct {
	adapters map[domain.Kind]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[domain.Kind]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		kind, err := domain.ParseKind(string(adapter.Kind()))
		if err != nil {
			continue
		}
		registry.adapters[kind] = adapter
	}
	return registry
}

func (r *Registry) Supports(kind domain.Kind) bool {
	_, err := r.adapter(kind)
	return err == nil
}

func (r *Registry) Resolve(ctx context.Context, kind domain.Kind, id snowflake.ID) (*domain.Item, error) {
	adapter, err := r.adapter(kind)
	if err != nil {
		return nil, err
	}
	return adapter.Resolve(ctx, id)
}

func (r *Registry) MarkPaid(ctx context.Context, kind domain.Kind, id snowflake.ID) error {
	adapter, err := r.adapter(kind)
	if err != nil {
		return err
	}
	return adapter.MarkPaid(ctx, id)
}

func (r *Registry) MarkCancelled(ctx context.Context, kind domain.Kind, id snowflake.ID) error {
	adapter, err := r.adapter(kind)
	if err != nil {
		return err
	}
	return adapter.MarkCancelled(ctx, id)
}

func (r *Registry) adapter(kind domain.Kind) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrUnknownKind
	}
	normalized, err := domain.ParseKind(string(kind))
	if err != nil {
		return nil, err
	}
	adapter, ok := r.adapters[normalized]
	if !ok {
		return nil, domain.ErrUnknownKind
	}
	return adapter, nil
}
