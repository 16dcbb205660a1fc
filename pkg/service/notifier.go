package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/storefront/pkg/models"
)

// Notifier delivers order confirmations after commit. Failures are logged by
// the caller and never affect the committed order.
type Notifier interface {
	OrderPlaced(ctx context.Context, order *models.Order) error
}

// LogNotifier is the default delivery channel: it writes the confirmation to
// the log. Real deployments swap in an email-backed implementation.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OrderPlaced(_ context.Context, order *models.Order) error {
	n.logger.Info("order confirmation",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("email", order.Email),
		zap.Float64("total_amount", order.TotalAmount))
	return nil
}
