package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
	"gopkg.in/yaml.v2"
)

// ids derived from natural keys stay stable across runs
var namespace = uuid.MustParse("6f1c3e2a-54a8-4b0e-9a57-0d3f5b2f7c11")

// Fixture is the YAML document describing plans, clients and subscriptions
type Fixture struct {
	Plans         []PlanFixture         `yaml:"plans"`
	Clients       []ClientFixture       `yaml:"clients"`
	Subscriptions []SubscriptionFixture `yaml:"subscriptions"`
}

type PlanFixture struct {
	Id             string `yaml:"id"`
	Name           string `yaml:"name"`
	MaxInstances   int    `yaml:"max_instances"`
	MaxUsers       int    `yaml:"max_users"`
	StorageLimitGb int    `yaml:"storage_limit_gb"`
	IsActive       *bool  `yaml:"is_active"`
}

type ClientFixture struct {
	Id          string `yaml:"id"`
	UserId      string `yaml:"user_id"`
	CompanyName string `yaml:"company_name"`
	Phone       string `yaml:"phone"`
	Address     string `yaml:"address"`
}

// SubscriptionFixture refers to its client by user id and its plan by name
type SubscriptionFixture struct {
	Id        string `yaml:"id"`
	Client    string `yaml:"client"`
	Plan      string `yaml:"plan"`
	Status    string `yaml:"status"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
}

// Load reads and parses a fixture file
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture document
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return &f, nil
}

// Apply upserts every record of f. Applying the same fixture twice changes nothing.
func Apply(ctx context.Context, repo repository.SeedRepository, f *Fixture) error {
	plans := make(map[string]string, len(f.Plans))
	for _, p := range f.Plans {
		plan, err := p.toModel()
		if err != nil {
			return err
		}
		if err := repo.UpsertPlan(ctx, plan); err != nil {
			return fmt.Errorf("failed to seed plan %q: %w", p.Name, err)
		}
		plans[plan.Name] = plan.Id
	}

	clients := make(map[string]string, len(f.Clients))
	for _, c := range f.Clients {
		client, err := c.toModel()
		if err != nil {
			return err
		}
		if err := repo.UpsertClient(ctx, client); err != nil {
			return fmt.Errorf("failed to seed client %q: %w", c.UserId, err)
		}
		clients[client.UserId] = client.Id
	}

	for _, s := range f.Subscriptions {
		sub, err := s.toModel(clients, plans)
		if err != nil {
			return err
		}
		if err := repo.UpsertSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to seed subscription for %q: %w", s.Client, err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"plans":         len(f.Plans),
		"clients":       len(f.Clients),
		"subscriptions": len(f.Subscriptions),
	}).Info("Seed fixture applied")
	return nil
}

// ApplyFile loads path and applies it
func ApplyFile(ctx context.Context, repo repository.SeedRepository, path string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	return Apply(ctx, repo, f)
}

func (p PlanFixture) toModel() (*models.Plan, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("plan without a name")
	}
	if p.MaxInstances < 0 {
		return nil, fmt.Errorf("plan %q: max_instances cannot be negative", p.Name)
	}
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return &models.Plan{
		Id:             idOr(p.Id, "plan:"+p.Name),
		Name:           p.Name,
		MaxInstances:   p.MaxInstances,
		MaxUsers:       p.MaxUsers,
		StorageLimitGb: p.StorageLimitGb,
		IsActive:       active,
	}, nil
}

func (c ClientFixture) toModel() (*models.Client, error) {
	if c.UserId == "" || c.CompanyName == "" {
		return nil, fmt.Errorf("client fixture needs user_id and company_name")
	}
	return &models.Client{
		Id:          idOr(c.Id, "client:"+c.UserId),
		UserId:      c.UserId,
		CompanyName: c.CompanyName,
		Phone:       c.Phone,
		Address:     c.Address,
	}, nil
}

func (s SubscriptionFixture) toModel(clients, plans map[string]string) (*models.Subscription, error) {
	clientId, ok := clients[s.Client]
	if !ok {
		return nil, fmt.Errorf("subscription refers to unknown client %q", s.Client)
	}
	planId, ok := plans[s.Plan]
	if !ok {
		return nil, fmt.Errorf("subscription refers to unknown plan %q", s.Plan)
	}

	status := models.SubscriptionStatus(s.Status)
	if s.Status == "" {
		status = models.SubscriptionStatusActive
	}
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusSuspended, models.SubscriptionStatusExpired:
	default:
		return nil, fmt.Errorf("subscription for %q has unknown status %q", s.Client, s.Status)
	}

	start, err := parseDate(s.StartDate)
	if err != nil {
		return nil, fmt.Errorf("subscription for %q: start_date: %w", s.Client, err)
	}
	if start.IsZero() {
		start = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	sub := &models.Subscription{
		Id:        idOr(s.Id, "subscription:"+s.Client+":"+s.Plan+":"+start.Format(time.DateOnly)),
		ClientId:  clientId,
		PlanId:    planId,
		Status:    status,
		StartDate: start,
	}

	if s.EndDate != "" {
		end, err := parseDate(s.EndDate)
		if err != nil {
			return nil, fmt.Errorf("subscription for %q: end_date: %w", s.Client, err)
		}
		sub.EndDate = &end
	}
	return sub, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, value)
}

func idOr(id, key string) string {
	if id != "" {
		return id
	}
	return uuid.NewSHA1(namespace, []byte(key)).String()
}
