// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import "time"

// EventKind identifies the shape of an Event's payload.
type EventKind string

const (
	EventWorkflowStart    EventKind = "workflow_start"
	EventStepStart        EventKind = "step_start"
	EventStepComplete     EventKind = "step_complete"
	EventStepError        EventKind = "step_error"
	EventWorkflowComplete EventKind = "workflow_complete"
)

// Event is the single payload shape emitted on the event channel. Observers
// that only care about a subset of kinds switch on Kind.
type Event struct {
	Kind      EventKind
	RunID     string
	StepID    string
	Step      *Step
	Result    *StepResult
	Err       error
	Status    RunStatus
	Timestamp time.Time
}

// EventSink is a fire-and-forget, non-blocking publisher: Dispatcher and
// Manager never wait on a consumer, and a slow or absent consumer never
// stalls step execution (§9 Design Note #3 — this replaces the observer
// callback style with a single-producer/many-consumer channel).
type EventSink struct {
	subscribers []chan Event
}

// NewEventSink constructs an EventSink with no subscribers.
func NewEventSink() *EventSink {
	return &EventSink{}
}

// Subscribe returns a channel that receives every future Publish call.
// The returned channel is buffered so a slow subscriber drops events
// instead of blocking the publisher.
func (s *EventSink) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Publish fans an event out to every subscriber. A subscriber whose buffer
// is full has the event dropped rather than blocking the caller — matching
// §6's "observers must not throw; core will not retry/reorder events on
// observer failure".
func (s *EventSink) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
