package sync

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/storeledger/kledo-sync/internal/eventbus"
	"github.com/storeledger/kledo-sync/internal/invoice"
	"github.com/storeledger/kledo-sync/internal/kledo"
	"github.com/storeledger/kledo-sync/internal/store"
)

// OrderCompletedEvent is the bus payload published by the webhook intake.
type OrderCompletedEvent struct {
	EventID    string        `json:"event_id"`
	OccurredAt time.Time     `json:"occurred_at"`
	Order      invoice.Order `json:"order"`
}

// Controller turns order-completed events into Kledo invoices. Each event is
// handled inline, once: failures and rejections are recorded and logged for
// operator inspection, never retried, and never propagated back to the
// storefront side.
type Controller struct {
	settings *store.SettingsStore
	client   *kledo.Client
	records  *store.SyncRecords
	bus      eventbus.EventBus
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewController(settings *store.SettingsStore, client *kledo.Client, records *store.SyncRecords, bus eventbus.EventBus, logger *zap.Logger) *Controller {
	return &Controller{
		settings: settings,
		client:   client,
		records:  records,
		bus:      bus,
		logger:   logger,
		tracer:   otel.Tracer("kledo-sync/sync"),
	}
}

// Start subscribes the controller to the order-completed topic.
func (c *Controller) Start(ctx context.Context) error {
	return c.bus.Subscribe(ctx, eventbus.TopicOrderCompleted, c.handleEvent)
}

// handleEvent always acks: a failed sync is recorded, not redelivered.
func (c *Controller) handleEvent(ctx context.Context, payload []byte) error {
	var event OrderCompletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.logger.Error("Discarding malformed order event", zap.Error(err))
		return nil
	}

	c.HandleOrderCompleted(ctx, &event.Order)
	return nil
}

// HandleOrderCompleted maps the order and creates the invoice. A no-op when
// the integration is disabled.
func (c *Controller) HandleOrderCompleted(ctx context.Context, order *invoice.Order) {
	ctx, span := c.tracer.Start(ctx, "sync.order_completed",
		trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	cs, err := c.settings.ConnectionSettings(ctx)
	if err != nil {
		c.logger.Error("Failed to load connection settings",
			zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	if !cs.SyncEnabled {
		c.logger.Debug("Invoice sync disabled, skipping order",
			zap.Int64("order_id", order.ID))
		return
	}

	is, err := c.settings.InvoiceSettings(ctx)
	if err != nil {
		c.logger.Error("Failed to load invoice settings",
			zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	payload := invoice.MapOrder(order, is)
	encoded, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("Failed to encode invoice payload",
			zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	record := &store.SyncRecord{
		OrderID: order.ID,
		Payload: datatypes.JSON(encoded),
	}

	resp, err := c.client.CreateInvoice(ctx, payload)
	switch {
	case err != nil:
		record.Status = store.SyncStatusFailed
		record.Error = err.Error()
		span.RecordError(err)
		c.logger.Error("Invoice creation failed",
			zap.Int64("order_id", order.ID), zap.Error(err))
	case resp.Rejected():
		record.Status = store.SyncStatusRejected
		record.Response = responseJSON(resp.Body)
		c.logger.Warn("Invoice creation rejected by Kledo",
			zap.Int64("order_id", order.ID),
			zap.Int("status", resp.StatusCode))
	default:
		record.Status = store.SyncStatusCreated
		record.Response = responseJSON(resp.Body)
		c.logger.Info("Invoice created",
			zap.Int64("order_id", order.ID),
			zap.Int("status", resp.StatusCode))
	}

	if err := c.records.Create(ctx, record); err != nil {
		c.logger.Error("Failed to record sync outcome",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// responseJSON keeps only bodies the JSON column will accept.
func responseJSON(body []byte) datatypes.JSON {
	if !json.Valid(body) {
		return nil
	}
	return datatypes.JSON(body)
}
