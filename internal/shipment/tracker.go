// Package shipment hands paid orders to the carrier and follows them until delivery.
package shipment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/antonminaichev/wholesale/internal/filestore"
	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/metrics"
	orders "github.com/antonminaichev/wholesale/internal/order"
	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrShipmentExists = errors.New("order already has a shipment")
	ErrNotShippable   = orders.ErrNotShippable
	ErrForbidden      = errors.New("admin only")
)

const (
	compensationReason = "order could not be saved"
	maxContentItems    = 3
)

var (
	minWeight       = decimal.NewFromInt(1)
	minDesi         = decimal.NewFromInt(1)
	volumePerItem   = decimal.NewFromInt(1000) // cm3, 10x10x10 per unit
	volumetricRatio = decimal.NewFromInt(3000)
)

type Tracker struct {
	tx      storage.Transactor
	repo    ShipmentRepository
	orders  OrderWorkflow
	carrier Carrier
	files   filestore.Store
	events  events.Publisher
	now     func() time.Time
}

func NewTracker(tx storage.Transactor, repo ShipmentRepository, ow OrderWorkflow, c Carrier, files filestore.Store, pub events.Publisher) *Tracker {
	return &Tracker{tx: tx, repo: repo, orders: ow, carrier: c, files: files, events: pub, now: time.Now}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// measure returns total weight in kg and volumetric desi, both at least 1.
func (t *Tracker) measure(ctx context.Context, o *order.Order) (decimal.Decimal, decimal.Decimal, error) {
	weight := decimal.Zero
	units := 0
	for _, it := range o.Items {
		p, err := t.repo.GetProduct(ctx, it.ProductID)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("product %d: %w", it.ProductID, err)
		}
		weight = weight.Add(p.Weight.Mul(decimal.NewFromInt(int64(it.Quantity))))
		units += it.Quantity
	}
	desi := volumePerItem.Mul(decimal.NewFromInt(int64(units))).Div(volumetricRatio).Round(2)
	return decimal.Max(weight, minWeight), decimal.Max(desi, minDesi), nil
}

func content(o *order.Order) string {
	parts := make([]string, 0, maxContentItems+1)
	for i, it := range o.Items {
		if i == maxContentItems {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%d)", it.ProductName, it.Quantity))
	}
	return strings.Join(parts, ", ")
}

func (t *Tracker) request(ctx context.Context, o *order.Order) (CarrierRequest, error) {
	weight, desi, err := t.measure(ctx, o)
	if err != nil {
		return CarrierRequest{}, err
	}
	buyer, err := t.repo.FindUserByID(ctx, o.UserID)
	if err != nil {
		return CarrierRequest{}, fmt.Errorf("find buyer: %w", err)
	}
	delivery := "N"
	if o.DeliveryType == order.DeliveryExpress {
		delivery = "E"
	}
	return CarrierRequest{
		OrderNumber:     o.Number,
		ReceiverName:    o.ShippingContactName,
		ReceiverPhone:   o.ShippingContactPhone,
		ReceiverAddress: o.ShippingAddress,
		PaymentType:     "P",
		ProductType:     "K",
		DeliveryType:    delivery,
		PieceCount:      1,
		Weight:          weight,
		Desi:            desi,
		Content:         content(o),
		InvoiceNumber:   o.Number,
		InvoiceAmount:   o.GrandTotal,
		EmailAddress:    buyer.Email,
	}, nil
}

// saveLabel stores the carrier barcode. A broken label is logged and does not block shipping.
func (t *Tracker) saveLabel(ctx context.Context, o *order.Order, data string) string {
	if data == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		dir := "labels/" + t.now().UTC().Format("2006/01")
		var path string
		if path, err = t.files.Save(ctx, dir, "barcode_"+o.Number+".pdf", raw); err == nil {
			return path
		}
	}
	logger.Log.Warn("carrier label not stored", zap.String("order_number", o.Number), zap.Error(err))
	return ""
}

func (t *Tracker) removeLabel(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := t.files.Remove(ctx, path); err != nil {
		logger.Log.Warn("orphaned carrier label", zap.String("path", path), zap.Error(err))
	}
}

// CreateShipment books the carrier for a paid order in processing and marks it shipped.
func (t *Tracker) CreateShipment(ctx context.Context, actor user.Actor, orderID int64) (*shipment.Shipment, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	o, err := t.orders.GetByID(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanBeShipped() {
		return nil, fmt.Errorf("%w: status %s, payment %s", ErrNotShippable, o.Status, o.PaymentStatus)
	}
	if _, err := t.repo.FindShipmentByOrder(ctx, o.ID); err == nil {
		return nil, ErrShipmentExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	req, err := t.request(ctx, o)
	if err != nil {
		return nil, err
	}
	cr, err := t.carrier.Create(ctx, req)
	if err != nil {
		metrics.RecordOrderOperation("create_shipment", false)
		logger.Log.Warn("carrier booking failed", zap.Int64("order_id", o.ID), zap.Error(err))
		if errors.Is(err, ErrCarrierUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}

	now := t.now().UTC()
	sh := &shipment.Shipment{
		OrderID:        o.ID,
		Carrier:        carrierCode,
		TrackingNumber: cr.TrackingNumber,
		Status:         shipment.StatusCreated,
		Weight:         req.Weight,
		Desi:           req.Desi,
		LabelPath:      t.saveLabel(ctx, o, cr.BarcodeData),
		IsDropshipping: o.IsDropshipping,
		ShippedAt:      &now,
		LastUpdateAt:   &now,
		CreatedAt:      now,
	}

	base := ctx
	ctx, batch := events.Defer(ctx)
	err = t.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := t.repo.CreateShipment(ctx, sh); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return ErrShipmentExists
			}
			return fmt.Errorf("create shipment: %w", err)
		}
		_, err := t.orders.MarkShipped(ctx, actor, o.ID, sh.TrackingNumber)
		return err
	})
	if err != nil {
		metrics.RecordOrderOperation("create_shipment", false)
		if cerr := t.carrier.Cancel(context.WithoutCancel(base), sh.TrackingNumber, compensationReason); cerr != nil {
			logger.Log.Error("carrier compensation failed",
				zap.Int64("order_id", o.ID),
				zap.String("tracking_number", sh.TrackingNumber),
				zap.Error(cerr),
			)
		}
		t.removeLabel(context.WithoutCancel(base), sh.LabelPath)
		return nil, err
	}
	batch.Flush(base, t.events)
	metrics.RecordOrderOperation("create_shipment", true)
	logger.Log.Info("shipment created",
		zap.Int64("order_id", o.ID),
		zap.String("tracking_number", sh.TrackingNumber),
		zap.Int64("actor_id", actor.ID),
	)
	return sh, nil
}

func (t *Tracker) IngestStatusUpdate(ctx context.Context, u shipment.Update) error {
	return t.ingest(ctx, u, "webhook")
}

func (t *Tracker) ingest(ctx context.Context, u shipment.Update, source string) error {
	status := MapStatus(u.CarrierStatus)
	base := ctx
	ctx, batch := events.Defer(ctx)
	applied := false
	err := t.tx.WithinTx(ctx, func(ctx context.Context) error {
		sh, err := t.repo.LockShipmentByTracking(ctx, u.TrackingNumber)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Log.Warn("status update for unknown shipment",
				zap.String("tracking_number", u.TrackingNumber),
				zap.String("source", source),
			)
			return nil
		}
		if err != nil {
			return err
		}
		if sh.Status.Terminal() || sh.Status == status {
			return nil
		}

		now := t.now().UTC()
		old := sh.Status
		sh.Status = status
		sh.StatusDescription = u.Description
		sh.LastUpdateAt = &now
		deliveredAt := now
		if status == shipment.StatusDelivered {
			if u.DeliveryDate != nil {
				deliveredAt = u.DeliveryDate.UTC()
			}
			sh.DeliveredAt = &deliveredAt
			sh.DeliverySignature = u.ReceiverName
		}
		if err := t.repo.UpdateShipment(ctx, sh); err != nil {
			return fmt.Errorf("update shipment: %w", err)
		}
		if err := t.repo.AppendOrderLog(ctx, &order.Log{
			OrderID:     sh.OrderID,
			Action:      order.LogShipmentStatusChanged,
			Description: fmt.Sprintf("shipment %s: %s", status, u.Description),
			OldValue:    map[string]any{"status": string(old)},
			NewValue:    map[string]any{"status": string(status), "tracking_number": sh.TrackingNumber},
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("append order log: %w", err)
		}
		if status == shipment.StatusDelivered {
			if _, err := t.orders.MarkDelivered(ctx, user.System, sh.OrderID, deliveredAt); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		logger.Log.Error("shipment status update failed",
			zap.String("tracking_number", u.TrackingNumber),
			zap.String("source", source),
			zap.Error(err),
		)
		return err
	}
	if applied {
		batch.Flush(base, t.events)
		metrics.RecordShipmentUpdate(source, string(status))
	}
	return nil
}

func (t *Tracker) Track(ctx context.Context, trackingNumber string) error {
	u, err := t.carrier.Status(ctx, trackingNumber)
	if err != nil {
		return fmt.Errorf("track %s: %w", trackingNumber, err)
	}
	return t.ingest(ctx, *u, "poll")
}

func (t *Tracker) GetTracking(ctx context.Context, actor user.Actor, orderNumber string) (*shipment.Tracking, error) {
	o, err := t.orders.Get(ctx, actor, orderNumber)
	if err != nil {
		return nil, err
	}
	tr := &shipment.Tracking{OrderNumber: o.Number, OrderStatus: string(o.Status)}
	sh, err := t.repo.FindShipmentByOrder(ctx, o.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return tr, nil
	}
	if err != nil {
		return nil, err
	}
	tr.Shipment = sh
	tr.TrackingURL = sh.TrackingURL()
	return tr, nil
}
