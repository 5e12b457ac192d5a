package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/ledger"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
	"github.com/ariefcatur/stonefab-orders/internal/pricing"
)

// Transition applies action to the quote on behalf of actor. Guard failures
// come back as structured errors from package orders and leave every row as
// it was. A concurrency conflict is retried once.
func (e *Engine) Transition(ctx context.Context, quoteID string, action orders.Action, actor orders.Actor, comment string) (orders.Quote, error) {
	if err := actor.Validate(); err != nil {
		return orders.Quote{}, err
	}
	comment = strings.TrimSpace(comment)

	q, from, err := e.transitionOnce(ctx, quoteID, action, actor, comment)
	if errors.Is(err, orders.ErrConcurrencyConflict) {
		e.log.Info("retrying transition after conflict",
			zap.String("quote_id", quoteID), zap.String("action", string(action)), zap.Error(err))
		q, from, err = e.transitionOnce(ctx, quoteID, action, actor, comment)
	}
	if err != nil {
		e.log.Debug("transition rejected",
			zap.String("quote_id", quoteID), zap.String("action", string(action)),
			zap.String("role", string(actor.Role)), zap.Error(err))
		return orders.Quote{}, err
	}

	rec := audit.Entry(actor, string(action), orders.EntityQuote, q.ID)
	rec.Reason = comment
	rec = audit.Diff(rec, map[string]any{"status": from}, map[string]any{"status": q.Status, "order_number": q.OrderNumber})
	e.committed(ctx, q, rec)
	e.events.Emit(ctx, orders.EventQuoteTransitioned, q.ID, orders.QuoteTransitionedPayload{
		QuoteID:     q.ID,
		OrderNumber: q.OrderNumber,
		Action:      action,
		From:        from,
		To:          q.Status,
		ActorID:     actor.ID,
		GrandTotal:  q.GrandTotal,
		At:          q.UpdatedAt,
	})
	e.log.Info("quote transitioned",
		zap.String("quote_id", q.ID), zap.String("action", string(action)),
		zap.String("from", string(from)), zap.String("to", string(q.Status)))
	return q, nil
}

func (e *Engine) transitionOnce(ctx context.Context, quoteID string, action orders.Action, actor orders.Actor, comment string) (orders.Quote, orders.Status, error) {
	var out orders.Quote
	var from orders.Status
	err := e.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		q, err := tx.GetQuote(ctx, quoteID, true)
		if err != nil {
			return err
		}
		rule, err := orders.Decide(actor.Role, q.Status, action)
		if err != nil {
			return err
		}
		if rule.CommentRequired && comment == "" {
			return &orders.ValidationError{Field: "comment", Message: "required for " + string(action)}
		}
		from = q.Status

		if err := e.apply(ctx, tx, &q, action, actor, comment); err != nil {
			return err
		}
		q.Status = rule.Next

		if err := tx.AppendApproval(ctx, orders.ApprovalLog{
			ID:        uuid.NewString(),
			QuoteID:   q.ID,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			ActorRole: actor.Role,
			Action:    action,
			From:      from,
			To:        rule.Next,
			Comment:   comment,
			CreatedAt: e.clock(),
		}); err != nil {
			return err
		}
		out, err = tx.UpdateQuote(ctx, q)
		return err
	})
	return out, from, err
}

// apply evaluates the guard of one action and performs its side effects on q
// and the store. It runs inside the transition's unit of work.
func (e *Engine) apply(ctx context.Context, tx orders.Tx, q *orders.Quote, action orders.Action, actor orders.Actor, comment string) error {
	switch action {
	case orders.ActionSubmit:
		if len(q.Items) == 0 {
			return &orders.ValidationError{Field: "items", Message: "at least one line item is required"}
		}
		if q.CustomerID == "" {
			return &orders.ValidationError{Field: "customer_id", Message: "a customer must be selected"}
		}

	case orders.ActionOrder:
		if err := e.checkCredit(ctx, tx, *q); err != nil {
			return err
		}
		if q.OrderNumber == "" {
			seq, err := tx.NextSequence(ctx, orders.SeqOrder)
			if err != nil {
				return err
			}
			q.OrderNumber = fmt.Sprintf("ORD-%06d", seq)
		}
		if !q.StockReserved {
			if err := e.stock.ReserveLines(ctx, tx, *q, actor.ID); err != nil {
				return err
			}
			q.StockReserved = true
		}

	case orders.ActionAccept:
		invs, err := tx.ListInvoicesByQuote(ctx, q.ID)
		if err != nil {
			return err
		}
		paid := ledger.DepositPaid(invs)
		pct := e.depositThreshold(ctx, tx)
		if pct <= 0 {
			if !anyDepositPaid(invs) {
				return &orders.DepositRequired{Paid: paid}
			}
			return nil
		}
		required := pricing.RoundMoney(pricing.Percent(q.GrandTotal, pct))
		if !pricing.IsPaid(required, paid) {
			return &orders.DepositRequired{Required: required, Paid: paid}
		}

	case orders.ActionComplete:
		invs, err := tx.ListInvoicesByQuote(ctx, q.ID)
		if err != nil {
			return err
		}
		owed, paid := ledger.AmountOwed(q.GrandTotal, invs), ledger.PaidOn(invs)
		if !pricing.IsPaid(owed, paid) {
			return &orders.BalanceOutstanding{BalanceDue: pricing.BalanceDue(owed, paid)}
		}
		if !q.StockDeducted {
			if err := e.stock.DeductLines(ctx, tx, *q, q.StockReserved, actor.ID); err != nil {
				return err
			}
			q.StockDeducted = true
			q.StockReserved = false
		}
		now := e.clock()
		q.CompletedAt = &now

	case orders.ActionCancel:
		if q.StockReserved && !q.StockDeducted {
			if err := e.stock.ReleaseLines(ctx, tx, *q, actor.ID); err != nil {
				return err
			}
			q.StockReserved = false
		}
		q.CancellationReason = comment
	}
	return nil
}

func anyDepositPaid(invs []orders.Invoice) bool {
	for _, inv := range invs {
		if inv.Type == orders.InvoiceDeposit && inv.Status != orders.InvoiceVoid && inv.AmountPaid > 0 {
			return true
		}
	}
	return false
}

// checkCredit enforces credit hold and limit. A limit of 0 means unlimited.
func (e *Engine) checkCredit(ctx context.Context, tx orders.Tx, q orders.Quote) error {
	c, err := tx.GetCustomer(ctx, q.CustomerID)
	if err != nil {
		return err
	}
	if c.CreditHold {
		return &orders.CreditHold{CustomerID: c.ID}
	}
	if c.CreditLimit <= 0 {
		return nil
	}
	debt, err := ledger.OutstandingDebtIn(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	if exposure := pricing.Sum(debt, q.GrandTotal); exposure > c.CreditLimit {
		return &orders.CreditLimitExceeded{Debt: debt, Limit: c.CreditLimit, OrderTotal: q.GrandTotal}
	}
	return nil
}
