package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/proofline-hq/proofline/pkg/models"
)

// ErrOrderNotFound is returned when no order exists under the given ID
var ErrOrderNotFound = errors.New("database: order not found")

// Settlement carries the terminal outcome of one order to the durable store
type Settlement struct {
	OrderID string
	TxHash  string
	Reason  string
}

// OrderDatabase provides order persistence on the durable store
type OrderDatabase struct {
	db *gorm.DB
}

// NewOrderDatabase creates an OrderDatabase on an open connection
func NewOrderDatabase(db *gorm.DB) *OrderDatabase {
	return &OrderDatabase{db: db}
}

// Ping verifies the database connection
func (d *OrderDatabase) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateOrder inserts a new order in status PENDING.
// The order ID is generated if unset.
func (d *OrderDatabase) CreateOrder(ctx context.Context, order *models.Order) error {
	order.Status = models.StatusPending
	if err := d.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrderByID fetches one order by its identifier
func (d *OrderDatabase) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	return &order, nil
}

// ConfirmSettled applies one terminal status to a batch of orders in a single
// case-keyed conditional update. Only rows not already terminal are touched,
// which makes repeated sweeps of the same batch idempotent. The returned IDs
// are the orders now durably in the requested status; only those may be
// evicted from the fast store.
func (d *OrderDatabase) ConfirmSettled(ctx context.Context, status models.OrderStatus, settlements []Settlement) ([]string, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("refusing to confirm non-terminal status %s", status)
	}
	if len(settlements) == 0 {
		return nil, nil
	}

	ids := make([]string, len(settlements))
	var txCase, reasonCase strings.Builder
	txArgs := make([]interface{}, 0, len(settlements)*2)
	reasonArgs := make([]interface{}, 0, len(settlements)*2)

	txCase.WriteString("CASE id")
	reasonCase.WriteString("CASE id")
	for i, s := range settlements {
		ids[i] = s.OrderID
		txCase.WriteString(" WHEN ? THEN ?")
		txArgs = append(txArgs, s.OrderID, s.TxHash)
		reasonCase.WriteString(" WHEN ? THEN ?")
		reasonArgs = append(reasonArgs, s.OrderID, s.Reason)
	}
	txCase.WriteString(" END")
	reasonCase.WriteString(" END")

	nonTerminal := []models.OrderStatus{models.StatusPending, models.StatusVerifying}
	err := d.db.WithContext(ctx).Model(&models.Order{}).
		Where("id IN ? AND status IN ?", ids, nonTerminal).
		Updates(map[string]interface{}{
			"status":  string(status),
			"tx_hash": gorm.Expr(txCase.String(), txArgs...),
			"error":   gorm.Expr(reasonCase.String(), reasonArgs...),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to confirm %s settlements: %w", status, err)
	}

	// Rows already in the target status from an earlier sweep count as
	// confirmed too, so their fast-store entries can finally be evicted
	var confirmed []string
	err = d.db.WithContext(ctx).Model(&models.Order{}).
		Where("id IN ? AND status = ?", ids, status).
		Pluck("id", &confirmed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read back confirmed settlements: %w", err)
	}
	return confirmed, nil
}

// CountByStatus returns the number of orders per lifecycle status
func (d *OrderDatabase) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	type row struct {
		Status models.OrderStatus
		Count  int64
	}
	var rows []row
	err := d.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	counts := make(map[models.OrderStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
