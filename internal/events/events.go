// Package events описывает доменные события и их доставку в Kafka через outbox.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type задаёт имя события; оно же имя топика Kafka.
type Type string

const (
	AppointmentBooked    Type = "appointment.booked.v1"
	AppointmentConfirmed Type = "appointment.confirmed.v1"
	AppointmentStarted   Type = "appointment.started.v1"
	AppointmentCompleted Type = "appointment.completed.v1"
	AppointmentCancelled Type = "appointment.cancelled.v1"
	AppointmentPaid      Type = "appointment.paid.v1"

	OrderPlaced            Type = "order.placed.v1"
	OrderStatusChanged     Type = "order.status_changed.v1"
	OrderCancelled         Type = "order.cancelled.v1"
	OrderRefunded          Type = "order.refunded.v1"
	PaymentAwaiting        Type = "payment.awaiting.v1"
	PaymentTransferClaimed Type = "payment.transfer_claimed.v1"
	PaymentConfirmed       Type = "payment.confirmed.v1"
	PaymentFailed          Type = "payment.failed.v1"
	PaymentRetried         Type = "payment.retried.v1"
)

const (
	AggregateAppointment = "appointment"
	AggregateOrder       = "order"
)

// Event описывает конверт доменного события, записываемый в outbox вместе с изменением сущности.
type Event struct {
	ID            string
	Type          Type
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Payload       []byte
}

// Record связывает событие outbox с порядковым номером хранилища.
type Record struct {
	Seq int64
	Event
}

// New собирает событие; payload сериализуется в JSON.
func New(t Type, aggregateType, aggregateID string, at time.Time, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    at,
		Payload:       data,
	}
}

// StatusPayload задаёт общее тело событий перехода статуса.
type StatusPayload struct {
	ID        string    `json:"id"`
	Number    string    `json:"number,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	At        time.Time `json:"at"`
}
