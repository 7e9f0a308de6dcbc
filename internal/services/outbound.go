package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

// Outbound sends engine messages and records node deliveries.
type Outbound struct {
	log      *logger.Logger
	notifier Notifier
	flows    repos.UserFlowRepo
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewOutbound(log *logger.Logger, notifier Notifier, flows repos.UserFlowRepo, metrics *observability.Metrics) *Outbound {
	return &Outbound{
		log:      log.With("service", "Outbound"),
		notifier: notifier,
		flows:    flows,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Send replies when replyToken is set and pushes to lineUserID otherwise.
func (o *Outbound) Send(ctx context.Context, lineUserID, replyToken string, msgs ...linemsg.Message) error {
	msgs = compact(msgs)
	if len(msgs) == 0 {
		return nil
	}
	mode := "push"
	var err error
	if strings.TrimSpace(replyToken) != "" {
		mode = "reply"
		err = o.notifier.Reply(ctx, replyToken, msgs)
	} else {
		err = o.notifier.Push(ctx, lineUserID, msgs)
	}
	if err != nil {
		o.metrics.IncDelivery(mode, types.DeliveryFailed)
		o.log.Warn("message delivery failed", "mode", mode, "line_user_id", lineUserID, "error", err)
		return fmt.Errorf("%s: %w", mode, err)
	}
	o.metrics.IncDelivery(mode, types.DeliverySent)
	return nil
}

// DeliverNode pushes a node message and appends the delivery log whatever the
// outcome. The returned error is the delivery error.
func (o *Outbound) DeliverNode(ctx context.Context, node *types.MessageNode, customer *types.Customer, replyToken string, msg linemsg.Message) error {
	sendErr := o.Send(ctx, customer.LineUserID, replyToken, msg)

	target := &types.StoryTarget{
		NodeID:      node.ID,
		CustomerID:  customer.ID,
		Status:      types.DeliverySent,
		DeliveredAt: o.now().UTC(),
	}
	if b, err := json.Marshal(msg); err == nil {
		target.Payload = datatypes.JSON(b)
	}
	if sendErr != nil {
		target.Status = types.DeliveryFailed
		target.Error = truncate(sendErr.Error(), 1000)
	}
	if err := o.flows.LogDelivery(dbctx.New(ctx), target); err != nil {
		o.log.Warn("delivery log write failed", "node_id", node.ID, "customer_id", customer.ID, "error", err)
	}
	return sendErr
}

func compact(msgs []linemsg.Message) []linemsg.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
