package models

import "time"

// InstanceReadOnlyFields are assigned by the orchestrator and rejected on create
var InstanceReadOnlyFields = []string{
	"id",
	"client_id",
	"subscription_id",
	"status",
	"status_display",
	"last_error",
	"port",
	"db_name",
	"db_password",
	"admin_password",
	"container_name",
	"created_at",
	"updated_at",
}

// CreateInstanceRequest represents the request body for creating a new instance
type CreateInstanceRequest struct {
	Name   string `json:"name" binding:"required"`
	Domain string `json:"domain" binding:"required"`
}

// InstanceResponse represents the response structure for a single instance
type InstanceResponse struct {
	Id               string         `json:"id"`
	ClientId         string         `json:"client_id"`
	ClientCompany    string         `json:"client_company,omitempty"`
	SubscriptionId   string         `json:"subscription_id"`
	SubscriptionPlan string         `json:"subscription_plan,omitempty"`
	Name             string         `json:"name"`
	Domain           string         `json:"domain"`
	Port             int            `json:"port"`
	DbName           string         `json:"db_name"`
	ContainerName    string         `json:"container_name"`
	Status           InstanceStatus `json:"status"`
	StatusDisplay    string         `json:"status_display"`
	LastError        string         `json:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// InstanceDetailResponse adds the plaintext credentials for the owner
type InstanceDetailResponse struct {
	InstanceResponse
	DbPassword    string `json:"db_password"`
	AdminPassword string `json:"admin_password"`
}

// InstanceListResponse represents the response structure for listing instances
type InstanceListResponse struct {
	Instances []InstanceResponse `json:"instances"`
	Total     int                `json:"total"`
}

// ToResponse converts a domain Instance to an InstanceResponse DTO
func (i *Instance) ToResponse() InstanceResponse {
	return InstanceResponse{
		Id:             i.Id,
		ClientId:       i.ClientId,
		SubscriptionId: i.SubscriptionId,
		Name:           i.Name,
		Domain:         i.Domain,
		Port:           i.Port,
		DbName:         i.DbName,
		ContainerName:  i.ContainerName,
		Status:         i.Status,
		StatusDisplay:  i.Status.Label(),
		LastError:      i.LastError,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}
