package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAutoReplyDue = "automation:auto_reply"

const TaskIntentionAnalysisDue = "automation:intention_analysis"

const TaskWebhookDelivery = "automation:webhook_delivery"

const TaskSendMessage = "automation:send_message"

// DebouncedTriggerPayload carries the version the trigger observed when it
// was scheduled. The handler no-ops if the counter has moved on.
type DebouncedTriggerPayload struct {
	LeadID  string `json:"leadId"`
	Version int64  `json:"version"`
}

type WebhookDeliveryPayload struct {
	LeadID   string         `json:"leadId"`
	SourceID string         `json:"sourceId"`
	Attempt  int            `json:"attempt"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type SendMessagePayload struct {
	LeadID   string `json:"leadId"`
	SourceID string `json:"sourceId"`
	Body     string `json:"body"`
}

func NewAutoReplyDueTask(payload DebouncedTriggerPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutoReplyDue, data), nil
}

func NewIntentionAnalysisDueTask(payload DebouncedTriggerPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntentionAnalysisDue, data), nil
}

func ParseDebouncedTriggerPayload(task *asynq.Task) (DebouncedTriggerPayload, error) {
	var payload DebouncedTriggerPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DebouncedTriggerPayload{}, err
	}
	return payload, nil
}

func NewWebhookDeliveryTask(payload WebhookDeliveryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookDelivery, data), nil
}

func ParseWebhookDeliveryPayload(task *asynq.Task) (WebhookDeliveryPayload, error) {
	var payload WebhookDeliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WebhookDeliveryPayload{}, err
	}
	return payload, nil
}

func NewSendMessageTask(payload SendMessagePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendMessage, data), nil
}

func ParseSendMessagePayload(task *asynq.Task) (SendMessagePayload, error) {
	var payload SendMessagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SendMessagePayload{}, err
	}
	return payload, nil
}
