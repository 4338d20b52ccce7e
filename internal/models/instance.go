package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/provisioner/internal/secrets"
)

// CredentialLength is the length of generated database and admin credentials
const CredentialLength = 32

// InstanceStatus is the deployment lifecycle state of an instance
type InstanceStatus string

const (
	InstanceStatusCreated   InstanceStatus = "created"
	InstanceStatusDeploying InstanceStatus = "deploying"
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusError     InstanceStatus = "error"
	InstanceStatusStopped   InstanceStatus = "stopped"
)

var instanceStatusLabels = map[InstanceStatus]string{
	InstanceStatusCreated:   "Created - Pending Deployment",
	InstanceStatusDeploying: "Deploying",
	InstanceStatusRunning:   "Running",
	InstanceStatusError:     "Error",
	InstanceStatusStopped:   "Stopped",
}

// allowed forward transitions; anything else is rejected by the registry
var instanceTransitions = map[InstanceStatus][]InstanceStatus{
	InstanceStatusCreated:   {InstanceStatusDeploying},
	InstanceStatusDeploying: {InstanceStatusRunning, InstanceStatusError},
	InstanceStatusRunning:   {InstanceStatusStopped},
}

// Label returns the human readable status
func (s InstanceStatus) Label() string {
	if label, ok := instanceStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid reports whether s is a known status
func (s InstanceStatus) Valid() bool {
	_, ok := instanceStatusLabels[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is a legal step
func (s InstanceStatus) CanTransitionTo(next InstanceStatus) bool {
	for _, candidate := range instanceTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the executor is done with an instance in this state
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusRunning || s == InstanceStatusError || s == InstanceStatusStopped
}

// Instance represents one provisioned tenant environment.
// DbPassword and AdminPassword hold sealed values once the instance is persisted.
type Instance struct {
	Id             string         `gorm:"primaryKey;size:36"`
	ClientId       string         `gorm:"size:36;not null;index"`
	SubscriptionId string         `gorm:"size:36;not null"`
	Name           string         `gorm:"size:63;not null;uniqueIndex"`
	Domain         string         `gorm:"size:253;not null;uniqueIndex"`
	Port           int            `gorm:"not null;uniqueIndex"`
	DbName         string         `gorm:"size:63;not null"`
	DbPassword     string         `gorm:"not null"`
	AdminPassword  string         `gorm:"not null"`
	ContainerName  string         `gorm:"size:80;not null;uniqueIndex"`
	Status         InstanceStatus `gorm:"size:16;not null;index"`
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewInstanceParams carries the allocated values an instance is built from
type NewInstanceParams struct {
	ClientId       string
	SubscriptionId string
	Name           string
	Domain         string
	Port           int
	DbName         string
	ContainerName  string
}

// NewInstance builds a complete instance record in the created state.
// Both credentials are generated here and nowhere else.
func NewInstance(p NewInstanceParams) (*Instance, error) {
	dbPassword, err := secrets.GenerateCredential(CredentialLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate database credential: %w", err)
	}
	adminPassword, err := secrets.GenerateCredential(CredentialLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate admin credential: %w", err)
	}

	now := time.Now().UTC()
	return &Instance{
		Id:             uuid.New().String(),
		ClientId:       p.ClientId,
		SubscriptionId: p.SubscriptionId,
		Name:           p.Name,
		Domain:         p.Domain,
		Port:           p.Port,
		DbName:         p.DbName,
		DbPassword:     dbPassword,
		AdminPassword:  adminPassword,
		ContainerName:  p.ContainerName,
		Status:         InstanceStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
