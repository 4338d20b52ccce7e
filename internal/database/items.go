package database

import (
	"time"

	"github.com/imyashkale/provisioner/internal/models"
	"gorm.io/datatypes"
)

// Reservation key prefixes. Each guard item claims one unique value.
const (
	reservationName    = "name#"
	reservationDomain  = "domain#"
	reservationPort    = "port#"
	reservationOpenLog = "open-log#"
	portSequenceKey    = "sequence#port"
)

type instanceItem struct {
	Id             string `dynamodbav:"Id"`
	ClientId       string `dynamodbav:"ClientId"`
	SubscriptionId string `dynamodbav:"SubscriptionId"`
	Name           string `dynamodbav:"Name"`
	Domain         string `dynamodbav:"Domain"`
	Port           int    `dynamodbav:"Port"`
	DbName         string `dynamodbav:"DbName"`
	DbPassword     string `dynamodbav:"DbPassword"`
	AdminPassword  string `dynamodbav:"AdminPassword"`
	ContainerName  string `dynamodbav:"ContainerName"`
	Status         string `dynamodbav:"Status"`
	LastError      string `dynamodbav:"LastError,omitempty"`
	CreatedAt      int64  `dynamodbav:"CreatedAt"`
	UpdatedAt      int64  `dynamodbav:"UpdatedAt"`
}

func newInstanceItem(i *models.Instance) instanceItem {
	return instanceItem{
		Id:             i.Id,
		ClientId:       i.ClientId,
		SubscriptionId: i.SubscriptionId,
		Name:           i.Name,
		Domain:         i.Domain,
		Port:           i.Port,
		DbName:         i.DbName,
		DbPassword:     i.DbPassword,
		AdminPassword:  i.AdminPassword,
		ContainerName:  i.ContainerName,
		Status:         string(i.Status),
		LastError:      i.LastError,
		CreatedAt:      i.CreatedAt.UnixMilli(),
		UpdatedAt:      i.UpdatedAt.UnixMilli(),
	}
}

func (it instanceItem) toDomain() *models.Instance {
	return &models.Instance{
		Id:             it.Id,
		ClientId:       it.ClientId,
		SubscriptionId: it.SubscriptionId,
		Name:           it.Name,
		Domain:         it.Domain,
		Port:           it.Port,
		DbName:         it.DbName,
		DbPassword:     it.DbPassword,
		AdminPassword:  it.AdminPassword,
		ContainerName:  it.ContainerName,
		Status:         models.InstanceStatus(it.Status),
		LastError:      it.LastError,
		CreatedAt:      time.UnixMilli(it.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(it.UpdatedAt).UTC(),
	}
}

type deploymentLogItem struct {
	Id              string                 `dynamodbav:"Id"`
	InstanceId      string                 `dynamodbav:"InstanceId"`
	ClientId        string                 `dynamodbav:"ClientId"`
	ActorId         *string                `dynamodbav:"ActorId,omitempty"`
	Action          string                 `dynamodbav:"Action"`
	Status          string                 `dynamodbav:"Status"`
	Details         map[string]interface{} `dynamodbav:"Details"`
	ErrorMessage    string                 `dynamodbav:"ErrorMessage,omitempty"`
	DurationSeconds float64                `dynamodbav:"DurationSeconds"`
	Timestamp       int64                  `dynamodbav:"Timestamp"`
	ClosedAt        *int64                 `dynamodbav:"ClosedAt,omitempty"`
}

func newDeploymentLogItem(l *models.DeploymentLog) deploymentLogItem {
	item := deploymentLogItem{
		Id:              l.Id,
		InstanceId:      l.InstanceId,
		ClientId:        l.ClientId,
		ActorId:         l.ActorId,
		Action:          string(l.Action),
		Status:          string(l.Status),
		Details:         map[string]interface{}(l.Details),
		ErrorMessage:    l.ErrorMessage,
		DurationSeconds: l.DurationSeconds,
		Timestamp:       l.Timestamp.UnixMilli(),
	}
	if item.Details == nil {
		item.Details = map[string]interface{}{}
	}
	if l.ClosedAt != nil {
		closed := l.ClosedAt.UnixMilli()
		item.ClosedAt = &closed
	}
	return item
}

func (it deploymentLogItem) toDomain() *models.DeploymentLog {
	l := &models.DeploymentLog{
		Id:              it.Id,
		InstanceId:      it.InstanceId,
		ClientId:        it.ClientId,
		ActorId:         it.ActorId,
		Action:          models.DeploymentAction(it.Action),
		Status:          models.DeploymentLogStatus(it.Status),
		Details:         datatypes.JSONMap(it.Details),
		ErrorMessage:    it.ErrorMessage,
		DurationSeconds: it.DurationSeconds,
		Timestamp:       time.UnixMilli(it.Timestamp).UTC(),
	}
	if it.ClosedAt != nil {
		closed := time.UnixMilli(*it.ClosedAt).UTC()
		l.ClosedAt = &closed
	}
	return l
}

type clientItem struct {
	Id            string `dynamodbav:"Id"`
	UserId        string `dynamodbav:"UserId"`
	CompanyName   string `dynamodbav:"CompanyName"`
	Phone         string `dynamodbav:"Phone,omitempty"`
	Address       string `dynamodbav:"Address,omitempty"`
	InstanceCount int    `dynamodbav:"InstanceCount,omitempty"`
	CreatedAt     int64  `dynamodbav:"CreatedAt"`
	UpdatedAt     int64  `dynamodbav:"UpdatedAt"`
}

func (it clientItem) toDomain() *models.Client {
	return &models.Client{
		Id:          it.Id,
		UserId:      it.UserId,
		CompanyName: it.CompanyName,
		Phone:       it.Phone,
		Address:     it.Address,
		CreatedAt:   time.UnixMilli(it.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(it.UpdatedAt).UTC(),
	}
}

type planItem struct {
	Id             string `dynamodbav:"Id"`
	Name           string `dynamodbav:"Name"`
	MaxInstances   int    `dynamodbav:"MaxInstances"`
	MaxUsers       int    `dynamodbav:"MaxUsers"`
	StorageLimitGb int    `dynamodbav:"StorageLimitGb"`
	IsActive       bool   `dynamodbav:"IsActive"`
	CreatedAt      int64  `dynamodbav:"CreatedAt"`
	UpdatedAt      int64  `dynamodbav:"UpdatedAt"`
}

func newPlanItem(p *models.Plan) planItem {
	return planItem{
		Id:             p.Id,
		Name:           p.Name,
		MaxInstances:   p.MaxInstances,
		MaxUsers:       p.MaxUsers,
		StorageLimitGb: p.StorageLimitGb,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt.UnixMilli(),
		UpdatedAt:      p.UpdatedAt.UnixMilli(),
	}
}

func (it planItem) toDomain() *models.Plan {
	return &models.Plan{
		Id:             it.Id,
		Name:           it.Name,
		MaxInstances:   it.MaxInstances,
		MaxUsers:       it.MaxUsers,
		StorageLimitGb: it.StorageLimitGb,
		IsActive:       it.IsActive,
		CreatedAt:      time.UnixMilli(it.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(it.UpdatedAt).UTC(),
	}
}

type subscriptionItem struct {
	Id        string `dynamodbav:"Id"`
	ClientId  string `dynamodbav:"ClientId"`
	PlanId    string `dynamodbav:"PlanId"`
	Status    string `dynamodbav:"Status"`
	StartDate int64  `dynamodbav:"StartDate"`
	EndDate   *int64 `dynamodbav:"EndDate,omitempty"`
	CreatedAt int64  `dynamodbav:"CreatedAt"`
	UpdatedAt int64  `dynamodbav:"UpdatedAt"`
}

func newSubscriptionItem(s *models.Subscription) subscriptionItem {
	item := subscriptionItem{
		Id:        s.Id,
		ClientId:  s.ClientId,
		PlanId:    s.PlanId,
		Status:    string(s.Status),
		StartDate: s.StartDate.UnixMilli(),
		CreatedAt: s.CreatedAt.UnixMilli(),
		UpdatedAt: s.UpdatedAt.UnixMilli(),
	}
	if s.EndDate != nil {
		end := s.EndDate.UnixMilli()
		item.EndDate = &end
	}
	return item
}

func (it subscriptionItem) toDomain() *models.Subscription {
	s := &models.Subscription{
		Id:        it.Id,
		ClientId:  it.ClientId,
		PlanId:    it.PlanId,
		Status:    models.SubscriptionStatus(it.Status),
		StartDate: time.UnixMilli(it.StartDate).UTC(),
		CreatedAt: time.UnixMilli(it.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(it.UpdatedAt).UTC(),
	}
	if it.EndDate != nil {
		end := time.UnixMilli(*it.EndDate).UTC()
		s.EndDate = &end
	}
	return s
}
