package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	pkgkafka "BarFeed/pkg/kafka"
	applogger "BarFeed/pkg/logger"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// SubscriptionCommand is the wire form shared by the command topic and
// WebSocket clients: {"action":"subscribe","type":"stock_trades","symbol":"AAPL"}.
type SubscriptionCommand struct {
	Action string `json:"action"`
	models.Subscription
}

// SubscriptionController is the part of the engine commands act on.
type SubscriptionController interface {
	Subscribe(sub models.Subscription) (models.SubscriptionKey, error)
	Unsubscribe(sub models.Subscription) bool
}

// ApplyCommand runs one command against ctrl.
func ApplyCommand(ctrl SubscriptionController, cmd SubscriptionCommand) (models.SubscriptionKey, error) {
	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case ActionSubscribe:
		return ctrl.Subscribe(cmd.Subscription)
	case ActionUnsubscribe:
		key := models.KeyOf(cmd.Subscription)
		ctrl.Unsubscribe(cmd.Subscription)
		return key, nil
	default:
		return models.SubscriptionKey{}, models.NewValidationError("action", "unsupported action %q", cmd.Action)
	}
}

// SubscriptionCommandHandler applies subscription commands read from Kafka.
// Every failure is permanent; replaying a bad command cannot fix it.
type SubscriptionCommandHandler struct {
	topic   string
	ctrl    SubscriptionController
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewSubscriptionCommandHandler(topic string, ctrl SubscriptionController, metrics domrepo.Metrics, log *applogger.Logger) *SubscriptionCommandHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &SubscriptionCommandHandler{topic: topic, ctrl: ctrl, metrics: metrics, log: log}
}

func (h *SubscriptionCommandHandler) Topic() string { return h.topic }

func (h *SubscriptionCommandHandler) Handle(_ context.Context, b []byte) error {
	var cmd SubscriptionCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode subscription command: %w", err))
	}
	key, err := ApplyCommand(h.ctrl, cmd)
	if err != nil {
		h.metrics.RecordError("command_apply")
		return pkgkafka.Permanent(fmt.Errorf("apply %s command: %w", cmd.Action, err))
	}
	h.log.Debug("subscription command applied",
		applogger.String("action", cmd.Action),
		applogger.String("key", key.String()),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*SubscriptionCommandHandler)(nil)
