package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/provisioner/internal/middleware"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
)

// callerClient resolves the client profile of the authenticated user.
// A user without a profile yields (nil, nil).
func callerClient(c *gin.Context, clients repository.ClientRepository) (*models.Client, error) {
	userId := middleware.UserID(c)
	if userId == "" {
		return nil, nil
	}
	client, err := clients.GetByUserId(c.Request.Context(), userId)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return client, err
}

// decorator fills the display fields of instance responses, caching lookups per request
type decorator struct {
	ctx           context.Context
	clients       repository.ClientRepository
	subscriptions repository.SubscriptionRepository
	companies     map[string]string
	plans         map[string]string
}

func newDecorator(ctx context.Context, store repository.Store) *decorator {
	return &decorator{
		ctx:           ctx,
		clients:       store.Clients(),
		subscriptions: store.Subscriptions(),
		companies:     make(map[string]string),
		plans:         make(map[string]string),
	}
}

func (d *decorator) response(instance *models.Instance) models.InstanceResponse {
	resp := instance.ToResponse()
	resp.ClientCompany = d.company(instance.ClientId)
	resp.SubscriptionPlan = d.plan(instance.SubscriptionId)
	return resp
}

func (d *decorator) company(clientId string) string {
	if name, ok := d.companies[clientId]; ok {
		return name
	}
	var name string
	if client, err := d.clients.Get(d.ctx, clientId); err == nil {
		name = client.CompanyName
	}
	d.companies[clientId] = name
	return name
}

func (d *decorator) plan(subscriptionId string) string {
	if name, ok := d.plans[subscriptionId]; ok {
		return name
	}
	var name string
	if sub, err := d.subscriptions.Get(d.ctx, subscriptionId); err == nil && sub.Plan != nil {
		name = sub.Plan.Name
	}
	d.plans[subscriptionId] = name
	return name
}
