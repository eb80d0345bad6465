package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskTimingSweep = "lifecycle.timing.sweep"

const TaskBulkRescore = "scoring.bulk.rescore"

type TimingSweepPayload struct {
	TenantID string `json:"tenantId"`
}

type BulkRescorePayload struct {
	TenantID string `json:"tenantId"`
}

func NewTimingSweepTask(payload TimingSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTimingSweep, data), nil
}

func ParseTimingSweepPayload(task *asynq.Task) (TimingSweepPayload, error) {
	var payload TimingSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TimingSweepPayload{}, err
	}
	return payload, nil
}

func NewBulkRescoreTask(payload BulkRescorePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkRescore, data), nil
}

func ParseBulkRescorePayload(task *asynq.Task) (BulkRescorePayload, error) {
	var payload BulkRescorePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BulkRescorePayload{}, err
	}
	return payload, nil
}
