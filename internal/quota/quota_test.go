package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/imyashkale/provisioner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscription(id string, maxInstances int) *models.Subscription {
	return &models.Subscription{
		Id:     id,
		Status: models.SubscriptionStatusActive,
		Plan:   &models.Plan{Id: "plan-" + id, MaxInstances: maxInstances},
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		active  []*models.Subscription
		count   int
		wantErr error
		limit   int
	}{
		{name: "no subscription", active: nil, count: 0, wantErr: ErrNoActiveSubscription},
		{name: "two active subscriptions", active: []*models.Subscription{subscription("a", 5), subscription("b", 5)}, wantErr: ErrAmbiguousSubscription},
		{name: "under the ceiling", active: []*models.Subscription{subscription("a", 2)}, count: 1},
		{name: "at the ceiling", active: []*models.Subscription{subscription("a", 2)}, count: 2, wantErr: ErrInstanceLimitReached, limit: 2},
		{name: "above the ceiling", active: []*models.Subscription{subscription("a", 1)}, count: 4, wantErr: ErrInstanceLimitReached, limit: 1},
		{name: "zero instance plan", active: []*models.Subscription{subscription("a", 0)}, count: 0, wantErr: ErrInstanceLimitReached, limit: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Check(tt.active, tt.count)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.active[0], sub)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, sub)

			var limitErr *LimitError
			if errors.As(err, &limitErr) {
				assert.Equal(t, tt.limit, limitErr.Limit)
			}
		})
	}
}

func TestLimitErrorMessage(t *testing.T) {
	err := &LimitError{Limit: 3}
	assert.Equal(t, "maximum instances limit reached (3)", err.Error())
}

type stubSource struct {
	subs []*models.Subscription
	err  error
}

func (s *stubSource) ListActiveByClient(context.Context, string) ([]*models.Subscription, error) {
	return s.subs, s.err
}

type stubCounter struct {
	count int
	calls int
}

func (s *stubCounter) CountByClient(context.Context, string) (int, error) {
	s.calls++
	return s.count, nil
}

func TestEvaluator(t *testing.T) {
	ctx := context.Background()

	t.Run("skips counting without a subscription", func(t *testing.T) {
		counter := &stubCounter{}
		_, err := NewEvaluator(&stubSource{}, counter).Evaluate(ctx, "client-1")
		assert.ErrorIs(t, err, ErrNoActiveSubscription)
		assert.Zero(t, counter.calls)
	})

	t.Run("returns the canonical subscription", func(t *testing.T) {
		sub := subscription("a", 1)
		got, err := NewEvaluator(&stubSource{subs: []*models.Subscription{sub}}, &stubCounter{}).Evaluate(ctx, "client-1")
		require.NoError(t, err)
		assert.Equal(t, sub, got)
	})

	t.Run("limit reached", func(t *testing.T) {
		sub := subscription("a", 1)
		_, err := NewEvaluator(&stubSource{subs: []*models.Subscription{sub}}, &stubCounter{count: 1}).Evaluate(ctx, "client-1")
		assert.ErrorIs(t, err, ErrInstanceLimitReached)
	})

	t.Run("storage failure", func(t *testing.T) {
		_, err := NewEvaluator(&stubSource{err: errors.New("boom")}, &stubCounter{}).Evaluate(ctx, "client-1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoActiveSubscription)
	})
}
