package event

import "time"

type Event interface {
	Message() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	message    string
	occurredAt time.Time
}

func (b BaseEvent) Message() string {
	return b.message
}

func (b BaseEvent) OccurredAt() time.Time {
	return b.occurredAt
}

func Text(message string) BaseEvent {
	return BaseEvent{message: message, occurredAt: time.Now()}
}

type FlowStartedEvent struct {
	BaseEvent
	Flow string
}

func FlowStarted(flow string) FlowStartedEvent {
	return FlowStartedEvent{BaseEvent: Text("flow started: " + flow), Flow: flow}
}

type FlowFinishedEvent struct {
	BaseEvent
	Flow    string
	Success bool
	Detail  string
}

func FlowFinished(flow string, success bool, detail string) FlowFinishedEvent {
	msg := "flow finished: " + flow
	if !success {
		msg = "flow failed: " + flow
	}
	return FlowFinishedEvent{BaseEvent: Text(msg), Flow: flow, Success: success, Detail: detail}
}

type StepWarningEvent struct {
	BaseEvent
	Flow string
	Step string
}

func StepWarning(flow, step, detail string) StepWarningEvent {
	return StepWarningEvent{
		BaseEvent: Text(flow + "/" + step + ": " + detail),
		Flow:      flow,
		Step:      step,
	}
}
