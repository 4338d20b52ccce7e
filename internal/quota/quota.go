package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/imyashkale/provisioner/internal/models"
)

var (
	ErrNoActiveSubscription  = errors.New("no active subscription found for this client")
	ErrAmbiguousSubscription = errors.New("client has more than one active subscription")
	ErrInstanceLimitReached  = errors.New("maximum instances limit reached")
)

// LimitError reports the plan ceiling a client has hit
type LimitError struct {
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("maximum instances limit reached (%d)", e.Limit)
}

// Is lets errors.Is match ErrInstanceLimitReached
func (e *LimitError) Is(target error) bool {
	return target == ErrInstanceLimitReached
}

// SubscriptionSource lists a client's active subscriptions with plans attached
type SubscriptionSource interface {
	ListActiveByClient(ctx context.Context, clientId string) ([]*models.Subscription, error)
}

// InstanceCounter counts every instance a client owns
type InstanceCounter interface {
	CountByClient(ctx context.Context, clientId string) (int, error)
}

// Check decides whether one more instance fits. It has no side effects.
func Check(active []*models.Subscription, count int) (*models.Subscription, error) {
	switch len(active) {
	case 0:
		return nil, ErrNoActiveSubscription
	case 1:
	default:
		return nil, ErrAmbiguousSubscription
	}

	sub := active[0]
	if sub.Plan == nil {
		return nil, fmt.Errorf("subscription %s has no plan", sub.Id)
	}
	if count >= sub.Plan.MaxInstances {
		return nil, &LimitError{Limit: sub.Plan.MaxInstances}
	}
	return sub, nil
}

// Evaluator reads a client's subscription and instance count and applies Check
type Evaluator struct {
	subscriptions SubscriptionSource
	instances     InstanceCounter
}

// NewEvaluator creates a new quota evaluator
func NewEvaluator(subscriptions SubscriptionSource, instances InstanceCounter) *Evaluator {
	return &Evaluator{
		subscriptions: subscriptions,
		instances:     instances,
	}
}

// Evaluate returns the subscription a new instance would be charged to
func (e *Evaluator) Evaluate(ctx context.Context, clientId string) (*models.Subscription, error) {
	active, err := e.subscriptions.ListActiveByClient(ctx, clientId)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActiveSubscription
	}

	count, err := e.instances.CountByClient(ctx, clientId)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}

	return Check(active, count)
}
