// Package repository persists the operational paper trail: terminal delivery
// outcomes and relayed inbound messages. The archive is best-effort; the
// bridge never depends on it.
package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/chat-gateway-go/internal/model"
)

type DeliveryLogRepository interface {
	Create(ctx context.Context, params model.CreateDeliveryRecordParams) error
	FindRecent(ctx context.Context, limit int) ([]model.DeliveryRecord, error)
	CountByStatus(ctx context.Context, status string) (int, error)
}

type deliveryLogRepo struct {
	db *sqlx.DB
}

func NewDeliveryLogRepository(db *sqlx.DB) DeliveryLogRepository {
	return &deliveryLogRepo{db: db}
}

func (r *deliveryLogRepo) Create(ctx context.Context, params model.CreateDeliveryRecordParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_log (id, recipient, message_id, status, error_message, created_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)
	`, params.ID, params.Recipient, params.MessageID, params.Status, params.ErrorMessage, params.SentAt)
	return err
}

func (r *deliveryLogRepo) FindRecent(ctx context.Context, limit int) ([]model.DeliveryRecord, error) {
	var records []model.DeliveryRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM delivery_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	return records, err
}

func (r *deliveryLogRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM delivery_log WHERE status = $1
	`, status)
	return count, err
}

type InboundLogRepository interface {
	Create(ctx context.Context, params model.CreateInboundRecordParams) error
	FindSince(ctx context.Context, since time.Time, limit int) ([]model.InboundRecord, error)
}

type inboundLogRepo struct {
	db *sqlx.DB
}

func NewInboundLogRepository(db *sqlx.DB) InboundLogRepository {
	return &inboundLogRepo{db: db}
}

func (r *inboundLogRepo) Create(ctx context.Context, params model.CreateInboundRecordParams) error {
	// externalMessageId collisions are expected on reconnect replays; the
	// archive keeps the first copy.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inbound_log (id, external_message_id, sender, sender_normalized, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (external_message_id) DO NOTHING
	`, params.ID, params.ExternalMessageID, params.Sender, params.SenderNormalized, params.Body)
	return err
}

func (r *inboundLogRepo) FindSince(ctx context.Context, since time.Time, limit int) ([]model.InboundRecord, error) {
	var records []model.InboundRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM inbound_log
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	return records, err
}
