package model

import "time"

// DeliveryRecord is the archived terminal outcome of an outbound request.
type DeliveryRecord struct {
	ID           string     `db:"id" json:"id"`
	Recipient    string     `db:"recipient" json:"recipient"`
	MessageID    *string    `db:"message_id" json:"messageId,omitempty"`
	Status       string     `db:"status" json:"status"`
	ErrorMessage *string    `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	SentAt       *time.Time `db:"sent_at" json:"sentAt,omitempty"`
}

type CreateDeliveryRecordParams struct {
	ID           string
	Recipient    string
	MessageID    *string
	Status       string
	ErrorMessage *string
	SentAt       *time.Time
}

// InboundRecord is an archived copy of a relayed inbound message.
type InboundRecord struct {
	ID                string    `db:"id" json:"id"`
	ExternalMessageID string    `db:"external_message_id" json:"externalMessageId"`
	Sender            string    `db:"sender" json:"sender"`
	SenderNormalized  string    `db:"sender_normalized" json:"senderNormalized"`
	Body              string    `db:"body" json:"body"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

type CreateInboundRecordParams struct {
	ID                string
	ExternalMessageID string
	Sender            string
	SenderNormalized  string
	Body              string
}
