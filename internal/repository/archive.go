package repository

import (
	"context"
	"fmt"

	"github.com/openclaw/chat-gateway-go/internal/model"
)

// Archive bundles the two log repositories behind the archiver interfaces
// the delivery engine and the relay consume.
type Archive struct {
	deliveries DeliveryLogRepository
	inbound    InboundLogRepository
}

func NewArchive(deliveries DeliveryLogRepository, inbound InboundLogRepository) *Archive {
	return &Archive{deliveries: deliveries, inbound: inbound}
}

func (a *Archive) ArchiveDelivery(ctx context.Context, params model.CreateDeliveryRecordParams) error {
	if err := a.deliveries.Create(ctx, params); err != nil {
		return fmt.Errorf("archive delivery: %w", err)
	}
	return nil
}

func (a *Archive) ArchiveInbound(ctx context.Context, params model.CreateInboundRecordParams) error {
	if err := a.inbound.Create(ctx, params); err != nil {
		return fmt.Errorf("archive inbound: %w", err)
	}
	return nil
}
