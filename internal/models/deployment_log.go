package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DeploymentAction is the kind of work a deployment attempt performs
type DeploymentAction string

const (
	DeploymentActionCreate DeploymentAction = "create"
)

// DeploymentLogStatus is the state of a single deployment attempt
type DeploymentLogStatus string

const (
	DeploymentLogInProgress DeploymentLogStatus = "in_progress"
	DeploymentLogSuccess    DeploymentLogStatus = "success"
	DeploymentLogFailed     DeploymentLogStatus = "failed"
)

// IsClosed reports whether the attempt has reached a terminal state
func (s DeploymentLogStatus) IsClosed() bool {
	return s == DeploymentLogSuccess || s == DeploymentLogFailed
}

// DeploymentLog is the audit entry for one deployment attempt.
// At most one entry per (instance, action) is in progress at a time.
type DeploymentLog struct {
	Id              string              `gorm:"primaryKey;size:36"`
	InstanceId      string              `gorm:"size:36;not null;index;uniqueIndex:idx_deployment_logs_open,where:status = 'in_progress'"`
	ClientId        string              `gorm:"size:36;not null;index"`
	ActorId         *string             `gorm:"size:255"`
	Action          DeploymentAction    `gorm:"size:16;not null;uniqueIndex:idx_deployment_logs_open,where:status = 'in_progress'"`
	Status          DeploymentLogStatus `gorm:"size:16;not null;index"`
	Details         datatypes.JSONMap
	ErrorMessage    string
	DurationSeconds float64
	Timestamp       time.Time `gorm:"not null;index"`
	ClosedAt        *time.Time
}

// NewDeploymentLog opens an in-progress entry for instance.
// An empty actorId records a system initiated attempt.
func NewDeploymentLog(instance *Instance, actorId string, action DeploymentAction) *DeploymentLog {
	var actor *string
	if actorId != "" {
		actor = &actorId
	}
	return &DeploymentLog{
		Id:         uuid.New().String(),
		InstanceId: instance.Id,
		ClientId:   instance.ClientId,
		ActorId:    actor,
		Action:     action,
		Status:     DeploymentLogInProgress,
		Details: datatypes.JSONMap{
			"name":   instance.Name,
			"domain": instance.Domain,
			"port":   instance.Port,
		},
		Timestamp: time.Now().UTC(),
	}
}

// Finish moves the entry to its terminal state in memory
func (l *DeploymentLog) Finish(status DeploymentLogStatus, errorMessage string, duration time.Duration) {
	now := time.Now().UTC()
	l.Status = status
	l.ErrorMessage = errorMessage
	l.DurationSeconds = duration.Seconds()
	l.ClosedAt = &now
}
