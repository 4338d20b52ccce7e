package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceStatusTransitions(t *testing.T) {
	tests := []struct {
		from InstanceStatus
		to   InstanceStatus
		want bool
	}{
		{InstanceStatusCreated, InstanceStatusDeploying, true},
		{InstanceStatusCreated, InstanceStatusRunning, false},
		{InstanceStatusCreated, InstanceStatusError, false},
		{InstanceStatusDeploying, InstanceStatusRunning, true},
		{InstanceStatusDeploying, InstanceStatusError, true},
		{InstanceStatusDeploying, InstanceStatusCreated, false},
		{InstanceStatusRunning, InstanceStatusStopped, true},
		{InstanceStatusRunning, InstanceStatusDeploying, false},
		{InstanceStatusError, InstanceStatusDeploying, false},
		{InstanceStatusStopped, InstanceStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestInstanceStatusLabel(t *testing.T) {
	assert.Equal(t, "Created - Pending Deployment", InstanceStatusCreated.Label())
	assert.Equal(t, "Running", InstanceStatusRunning.Label())
	assert.Equal(t, "unknown", InstanceStatus("unknown").Label())
	assert.False(t, InstanceStatus("unknown").Valid())
	assert.True(t, InstanceStatusError.IsTerminal())
	assert.False(t, InstanceStatusDeploying.IsTerminal())
}

func TestNewInstance(t *testing.T) {
	instance, err := NewInstance(NewInstanceParams{
		ClientId:       "client-1",
		SubscriptionId: "sub-1",
		Name:           "acme",
		Domain:         "acme.example.com",
		Port:           8070,
		DbName:         "acme",
		ContainerName:  "instance_acme",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, instance.Id)
	assert.Equal(t, InstanceStatusCreated, instance.Status)
	assert.Len(t, instance.DbPassword, CredentialLength)
	assert.Len(t, instance.AdminPassword, CredentialLength)
	assert.NotEqual(t, instance.DbPassword, instance.AdminPassword)
	assert.Equal(t, instance.CreatedAt, instance.UpdatedAt)

	other, err := NewInstance(NewInstanceParams{Name: "other"})
	require.NoError(t, err)
	assert.NotEqual(t, instance.Id, other.Id)
	assert.NotEqual(t, instance.DbPassword, other.DbPassword)
}

func TestNewDeploymentLog(t *testing.T) {
	instance := &Instance{Id: "inst-1", ClientId: "client-1", Name: "acme", Domain: "acme.example.com", Port: 8070}

	entry := NewDeploymentLog(instance, "user-1", DeploymentActionCreate)
	require.NotNil(t, entry.ActorId)
	assert.Equal(t, "user-1", *entry.ActorId)
	assert.Equal(t, DeploymentLogInProgress, entry.Status)
	assert.Equal(t, "client-1", entry.ClientId)
	assert.Equal(t, 8070, entry.Details["port"])
	assert.Nil(t, entry.ClosedAt)

	system := NewDeploymentLog(instance, "", DeploymentActionCreate)
	assert.Nil(t, system.ActorId)

	entry.Finish(DeploymentLogFailed, "disk full", 0)
	assert.True(t, entry.Status.IsClosed())
	assert.Equal(t, "disk full", entry.ErrorMessage)
	assert.NotNil(t, entry.ClosedAt)

	resp := entry.ToResponse()
	assert.Equal(t, "acme", resp.Details["name"])
}
