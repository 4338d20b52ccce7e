package models

import "time"

// DeploymentLogResponse represents the response structure for a deployment log entry
type DeploymentLogResponse struct {
	Id              string                 `json:"id"`
	InstanceId      string                 `json:"instance_id"`
	ActorId         *string                `json:"actor_id"`
	Action          DeploymentAction       `json:"action"`
	Status          DeploymentLogStatus    `json:"status"`
	Details         map[string]interface{} `json:"details"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	Timestamp       time.Time              `json:"timestamp"`
	ClosedAt        *time.Time             `json:"closed_at,omitempty"`
}

// DeploymentLogListResponse represents the response structure for listing deployment logs
type DeploymentLogListResponse struct {
	Logs  []DeploymentLogResponse `json:"logs"`
	Total int                     `json:"total"`
}

// ToResponse converts a domain DeploymentLog to a DeploymentLogResponse DTO
func (l *DeploymentLog) ToResponse() DeploymentLogResponse {
	details := map[string]interface{}(l.Details)
	if details == nil {
		details = map[string]interface{}{}
	}
	return DeploymentLogResponse{
		Id:              l.Id,
		InstanceId:      l.InstanceId,
		ActorId:         l.ActorId,
		Action:          l.Action,
		Status:          l.Status,
		Details:         details,
		ErrorMessage:    l.ErrorMessage,
		DurationSeconds: l.DurationSeconds,
		Timestamp:       l.Timestamp,
		ClosedAt:        l.ClosedAt,
	}
}
