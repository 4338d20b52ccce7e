package allocator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/imyashkale/provisioner/internal/repository"
)

var (
	ErrInvalidName   = errors.New("instance name must start with a lowercase letter and contain only lowercase letters, digits and underscores (2-63 characters)")
	ErrInvalidDomain = errors.New("domain must be a fully qualified domain name")
)

// names double as database identifiers
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// DefaultContainerPrefix is prepended to the instance name to form the container identity
const DefaultContainerPrefix = "instance_"

// Allocation holds the resources assigned to a new instance
type Allocation struct {
	Name          string
	Domain        string
	Port          int
	DbName        string
	ContainerName string
}

// Registry answers uniqueness questions against existing instances
type Registry interface {
	ExistsByName(ctx context.Context, name string) (bool, error)
	ExistsByDomain(ctx context.Context, domain string) (bool, error)
}

// Allocator assigns port, database name and container identity to new instances
type Allocator struct {
	registry        Registry
	ports           repository.PortSequence
	containerPrefix string
	validate        *validator.Validate
}

// New creates a new allocator. An empty prefix falls back to DefaultContainerPrefix.
func New(registry Registry, ports repository.PortSequence, containerPrefix string) *Allocator {
	if containerPrefix == "" {
		containerPrefix = DefaultContainerPrefix
	}
	return &Allocator{
		registry:        registry,
		ports:           ports,
		containerPrefix: containerPrefix,
		validate:        validator.New(),
	}
}

// NormalizeDomain lowercases a domain and strips a trailing dot
func NormalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// ValidateName checks a requested instance name
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidateDomain checks a normalized domain
func (a *Allocator) ValidateDomain(domain string) error {
	if err := a.validate.Var(domain, "required,fqdn"); err != nil {
		return ErrInvalidDomain
	}
	return nil
}

// Allocate validates the request and leases a port. Nothing is written except the
// port counter, so a rejected request leaves no partial state behind.
func (a *Allocator) Allocate(ctx context.Context, name, domain string) (*Allocation, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	domain = NormalizeDomain(domain)
	if err := a.ValidateDomain(domain); err != nil {
		return nil, err
	}

	taken, err := a.registry.ExistsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check name: %w", err)
	}
	if taken {
		return nil, repository.ErrNameTaken
	}

	taken, err = a.registry.ExistsByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to check domain: %w", err)
	}
	if taken {
		return nil, repository.ErrDomainTaken
	}

	port, err := a.ports.NextPort(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lease port: %w", err)
	}

	return &Allocation{
		Name:          name,
		Domain:        domain,
		Port:          port,
		DbName:        name,
		ContainerName: a.containerPrefix + name,
	}, nil
}
