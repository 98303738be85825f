package purchasable

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/purchasable/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockAdapter struct {
	mock.Mock
}

func (m *mockAdapter) Kind() domain.Kind {
	return domain.Kind(m.Called().String(0))
}

func (m *mockAdapter) Resolve(ctx context.Context, id snowflake.ID) (*domain.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *mockAdapter) MarkPaid(ctx context.Context, id snowflake.ID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAdapter) MarkCancelled(ctx context.Context, id snowflake.ID) error {
	return m.Called(ctx, id).Error(0)
}

func TestRegistryDispatchesByKind(t *testing.T) {
	ctx := context.Background()
	adapter := &mockAdapter{}
	adapter.On("Kind").Return(" Competition ")
	adapter.On("Resolve", ctx, snowflake.ID(9)).Return(&domain.Item{ID: 9, Price: 100}, nil)
	adapter.On("MarkPaid", ctx, snowflake.ID(9)).Return(nil)

	registry := NewRegistry(adapter, nil)

	assert.True(t, registry.Supports(domain.KindCompetition))
	item, err := registry.Resolve(ctx, "COMPETITION", 9)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), item.Price)
	assert.NoError(t, registry.MarkPaid(ctx, domain.KindCompetition, 9))
	adapter.AssertExpectations(t)
}

func TestRegistryRejectsUnknownKind(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Resolve(context.Background(), "team", 1)
	assert.True(t, errors.Is(err, domain.ErrUnknownKind))
	assert.False(t, registry.Supports(""))

	var nilRegistry *Registry
	assert.ErrorIs(t, nilRegistry.MarkCancelled(context.Background(), domain.KindCompetition, 1), domain.ErrUnknownKind)
}
