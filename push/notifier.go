package push

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iapkit/event"
	"github.com/code-payments/flipchat-iapkit/iap"
)

const entitlementsThreadID = "entitlements"

var _ event.Handler[string, *iap.EntitlementEvent] = (*EntitlementNotifier)(nil)

// EntitlementNotifier sends a silent push to every device of a user whenever
// one of their entitlements is granted or revoked, so other installs can
// refresh without waiting for their own feed.
type EntitlementNotifier struct {
	log    *zap.Logger
	userID string
	pusher Pusher
}

func NewEntitlementNotifier(log *zap.Logger, userID string, pusher Pusher) *EntitlementNotifier {
	return &EntitlementNotifier{
		log:    log,
		userID: userID,
		pusher: pusher,
	}
}

func (n *EntitlementNotifier) OnEvent(productID string, e *iap.EntitlementEvent) {
	log := n.log.With(
		zap.String("product_id", productID),
		zap.Stringer("transition", e.Transition),
		zap.Stringer("source", e.Source),
	)

	if e.Transition == iap.TransitionNone {
		log.Debug("Dropping push, no transition")
		return
	}

	data := map[string]string{
		"type":       "entitlements_changed",
		"product_id": productID,
		"transition": e.Transition.String(),
		"timestamp":  strconv.FormatInt(e.Timestamp.UnixMilli(), 10),
	}

	if err := n.pusher.SendSilentPushes(context.Background(), entitlementsThreadID, []string{n.userID}, data); err != nil {
		log.Warn("Failed to send entitlement push", zap.Error(err))
		return
	}

	log.Debug("Sent entitlement push")
}
