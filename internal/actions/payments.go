package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/notify"
	"github.com/halcyonops/waba-actions/internal/payment"
)

func registerPayments(r *dispatch.Registry) {
	r.MustRegister("create_payment", createPayment)
	r.MustRegister("update_payment_status", updatePaymentStatus)
	r.MustRegister("create_refund", createRefund)
	r.MustRegister("create_order", createOrder)
	r.MustRegister("get_payment", getPayment)
	r.MustRegister("list_payments", listPayments)
}

func paymentView(p *payment.Payment) map[string]any {
	view := map[string]any{
		"paymentId":     p.PaymentID,
		"wabaId":        p.WabaID,
		"counterpartId": p.CounterpartID,
		"amountMinor":   p.AmountMinor,
		"currency":      p.Currency,
		"status":        string(p.Status),
		"retryCount":    p.RetryCount,
		"updatedAt":     p.UpdatedAt.Format(time.RFC3339),
	}
	if p.OrderRef != "" {
		view["orderRef"] = p.OrderRef
	}
	if p.FailureReason != "" {
		view["failureReason"] = p.FailureReason
	}
	return view
}

func createPayment(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	counterpartID, err := requireString(env.Payload, "counterpartId")
	if err != nil {
		return nil, err
	}
	amount, err := requireNumber(env.Payload, "amountMinor")
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apierr.InvalidArguments("field \"amountMinor\" must be positive")
	}
	currency, err := requireString(env.Payload, "currency")
	if err != nil {
		return nil, err
	}

	paymentID := optString(env.Payload, "paymentId")
	if paymentID == "" {
		paymentID = uuid.NewString()
	}

	p := &payment.Payment{
		PaymentID:     paymentID,
		WabaID:        wabaID,
		OrderRef:      optString(env.Payload, "orderRef"),
		CounterpartID: counterpartID,
		AmountMinor:   amount,
		Currency:      currency,
		Status:        payment.StatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := d.Payments().CreatePayment(ctx, p); err != nil {
		if err == payment.ErrPaymentExists {
			return nil, apierr.Conflict("payment " + paymentID + " already exists")
		}
		return nil, err
	}
	return dispatch.OK("create_payment", map[string]any{"payment": paymentView(p)}), nil
}

func updatePaymentStatus(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	paymentID, err := requireString(env.Payload, "paymentId")
	if err != nil {
		return nil, err
	}
	statusStr, err := requireString(env.Payload, "status")
	if err != nil {
		return nil, err
	}
	status := payment.Status(statusStr)
	reason := optString(env.Payload, "reason")

	updated, err := d.Payments().UpdatePaymentStatus(ctx, paymentID, status, reason)
	if err != nil {
		switch err {
		case payment.ErrPaymentNotFound:
			return nil, apierr.NotFound("payment " + paymentID + " not found")
		case payment.ErrBadTransition:
			return nil, apierr.Conflict(fmt.Sprintf("payment %s cannot move to %s", paymentID, status))
		}
		return nil, err
	}

	if updated.Status == payment.StatusFailed && updated.RetryCount < payment.MaxRetries {
		requeuePayment(ctx, d, env, updated)
	}

	publishPaymentEvent(ctx, d, updated)

	return dispatch.OK("update_payment_status", map[string]any{"payment": paymentView(updated)}), nil
}

// requeuePayment forwards the original request to the retry queue with a
// delay that doubles per attempt. Forward failures are logged; the status
// write already happened.
func requeuePayment(ctx context.Context, d *deps.Deps, env *envelope.Envelope, p *payment.Payment) {
	delay := time.Minute << p.RetryCount
	if err := d.Retry().Forward(ctx, env.Raw, delay); err != nil {
		d.Logger.Warn("payment retry enqueue failed",
			slog.String("paymentId", p.PaymentID),
			slog.String("error", err.Error()))
		return
	}
	d.Logger.Info("payment requeued for retry",
		slog.String("paymentId", p.PaymentID),
		slog.Int("retryCount", p.RetryCount),
		slog.Duration("delay", delay))
}

func publishPaymentEvent(ctx context.Context, d *deps.Deps, p *payment.Payment) {
	detail, err := json.Marshal(map[string]any{
		"paymentId": p.PaymentID,
		"status":    string(p.Status),
	})
	if err != nil {
		return
	}
	if err := d.Events().Publish(ctx, notify.Event{
		Type:   "payment.status_changed",
		WabaID: p.WabaID,
		Detail: detail,
	}); err != nil {
		d.Logger.Warn("payment event publish failed",
			slog.String("paymentId", p.PaymentID),
			slog.String("error", err.Error()))
	}
}

func createRefund(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	paymentID, err := requireString(env.Payload, "paymentId")
	if err != nil {
		return nil, err
	}
	amount, err := requireNumber(env.Payload, "amountMinor")
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apierr.InvalidArguments("field \"amountMinor\" must be positive")
	}

	p, err := d.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		if err == payment.ErrPaymentNotFound {
			return nil, apierr.NotFound("payment " + paymentID + " not found")
		}
		return nil, err
	}
	if p.Status != payment.StatusCompleted {
		return nil, apierr.Conflict("payment " + paymentID + " is not completed; nothing to refund")
	}
	if amount > p.AmountMinor {
		return nil, apierr.InvalidArguments("refund amount exceeds the payment amount")
	}

	refundID := optString(env.Payload, "refundId")
	if refundID == "" {
		refundID = uuid.NewString()
	}

	refund := &payment.Refund{
		RefundID:    refundID,
		PaymentID:   paymentID,
		WabaID:      p.WabaID,
		AmountMinor: amount,
		Currency:    p.Currency,
		Status:      payment.StatusPending,
		Reason:      optString(env.Payload, "reason"),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := d.Payments().CreateRefund(ctx, refund); err != nil {
		return nil, err
	}
	return dispatch.OK("create_refund", map[string]any{
		"refundId":  refundID,
		"paymentId": paymentID,
		"status":    string(refund.Status),
	}), nil
}

func createOrder(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	counterpartID, err := requireString(env.Payload, "counterpartId")
	if err != nil {
		return nil, err
	}
	currency, err := requireString(env.Payload, "currency")
	if err != nil {
		return nil, err
	}

	rawLines, ok := env.Payload["lines"].([]any)
	if !ok || len(rawLines) == 0 {
		return nil, apierr.InvalidArguments("field \"lines\" must be a non-empty array")
	}
	lines := make([]payment.OrderLine, 0, len(rawLines))
	var total int64
	for _, raw := range rawLines {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, apierr.InvalidArguments("field \"lines\" must contain objects")
		}
		name, err := requireString(entry, "name")
		if err != nil {
			return nil, err
		}
		price, err := requireNumber(entry, "price")
		if err != nil {
			return nil, err
		}
		qty := optNumber(entry, "quantity", 1)
		if qty <= 0 {
			return nil, apierr.InvalidArguments("line quantity must be positive")
		}
		lines = append(lines, payment.OrderLine{
			ItemID:   optString(entry, "itemId"),
			Name:     name,
			Quantity: int(qty),
			Price:    price,
		})
		total += price * qty
	}

	orderRef := optString(env.Payload, "orderRef")
	if orderRef == "" {
		orderRef = uuid.NewString()
	}

	order := &payment.Order{
		OrderRef:      orderRef,
		WabaID:        wabaID,
		CounterpartID: counterpartID,
		Lines:         lines,
		TotalMinor:    total,
		Currency:      currency,
		Status:        payment.StatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := d.Payments().CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return dispatch.OK("create_order", map[string]any{
		"orderRef":   orderRef,
		"totalMinor": total,
		"currency":   currency,
	}), nil
}

func getPayment(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	paymentID, err := requireString(env.Payload, "paymentId")
	if err != nil {
		return nil, err
	}

	p, err := d.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		if err == payment.ErrPaymentNotFound {
			return nil, apierr.NotFound("payment " + paymentID + " not found")
		}
		return nil, err
	}
	return dispatch.OK("get_payment", map[string]any{"payment": paymentView(p)}), nil
}

func listPayments(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	statusStr, err := requireString(env.Payload, "status")
	if err != nil {
		return nil, err
	}
	limit := int32(optNumber(env.Payload, "limit", defaultQueryLimit))

	payments, err := d.Payments().ListByStatus(ctx, wabaID, payment.Status(statusStr), limit)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, 0, len(payments))
	for _, p := range payments {
		views = append(views, paymentView(p))
	}
	return dispatch.OK("list_payments", map[string]any{
		"payments": views,
		"count":    len(views),
	}), nil
}
