package api

import (
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/domain"
)

func TestJobFromDomain_Status(t *testing.T) {
	queueID := uuid.New()
	instanceID := uuid.New()

	tests := []struct {
		name string
		job  domain.Job
		want string
	}{
		{
			name: "sent",
			job:  domain.Job{Sent: true},
			want: "sent",
		},
		{
			name: "failed",
			job:  domain.Job{Failed: true},
			want: "failed",
		},
		{
			name: "queued while assigned",
			job:  domain.Job{InstanceID: &instanceID, QueueID: &queueID},
			want: "queued",
		},
		{
			name: "pending after detach",
			job:  domain.Job{},
			want: "pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JobFromDomain(&tt.job)
			if got.Status != tt.want {
				t.Errorf("status = %q, want %q", got.Status, tt.want)
			}
		})
	}
}

func TestJobFromDomain_InstanceID(t *testing.T) {
	instanceID := uuid.New()

	withInstance := JobFromDomain(&domain.Job{InstanceID: &instanceID})
	if withInstance.InstanceID == nil || *withInstance.InstanceID != instanceID.String() {
		t.Errorf("instance_id = %v, want %s", withInstance.InstanceID, instanceID)
	}

	detached := JobFromDomain(&domain.Job{})
	if detached.InstanceID != nil {
		t.Errorf("instance_id = %v, want nil", *detached.InstanceID)
	}
}
