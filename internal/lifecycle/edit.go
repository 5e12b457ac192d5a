package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
	"github.com/ariefcatur/stonefab-orders/internal/pricing"
)

type NewQuote struct {
	CustomerID     string
	Notes          string
	DiscountAmount float64
	Items          []LineInput
}

// LineInput is one line as entered. Nil price or wastage takes the product default.
type LineInput struct {
	ID              string
	ProductID       string
	ProductName     string
	Width           float64
	Height          float64
	Pieces          float64
	PricePerSqm     *float64
	WastagePercent  *float64
	DiscountPercent float64
}

func (in LineInput) validate(i int) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
	switch {
	case in.Width < 0:
		return &orders.ValidationError{Field: field("width"), Message: "must not be negative"}
	case in.Height < 0:
		return &orders.ValidationError{Field: field("height"), Message: "must not be negative"}
	case in.Pieces < 0:
		return &orders.ValidationError{Field: field("pieces"), Message: "must not be negative"}
	case in.PricePerSqm != nil && *in.PricePerSqm < 0:
		return &orders.ValidationError{Field: field("price_per_sqm"), Message: "must not be negative"}
	case in.WastagePercent != nil && (*in.WastagePercent < 0 || *in.WastagePercent > 100):
		return &orders.ValidationError{Field: field("wastage_percent"), Message: "must be between 0 and 100"}
	case in.DiscountPercent < 0 || in.DiscountPercent > 100:
		return &orders.ValidationError{Field: field("discount_percent"), Message: "must be between 0 and 100"}
	}
	return nil
}

// QuoteEdit carries a partial header update and, when Items is set, a full
// replacement of the line items. ExpectedVersion 0 skips the lost-update check.
type QuoteEdit struct {
	CustomerID      *string
	Notes           *string
	DiscountAmount  *float64
	Items           *[]LineInput
	ExpectedVersion int
}

func (e QuoteEdit) validate() error {
	if e.DiscountAmount != nil && *e.DiscountAmount < 0 {
		return &orders.ValidationError{Field: "discount_amount", Message: "must not be negative"}
	}
	if e.CustomerID != nil && strings.TrimSpace(*e.CustomerID) == "" {
		return &orders.ValidationError{Field: "customer_id", Message: "must not be empty"}
	}
	if e.Items != nil {
		for i, it := range *e.Items {
			if err := it.validate(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// EditResult reports whether an edit was applied. An edit outside the
// editability window is refused without an error.
type EditResult struct {
	Quote   orders.Quote `json:"quote"`
	Applied bool         `json:"applied"`
	Reason  string       `json:"reason,omitempty"`
}

func (e *Engine) CreateQuote(ctx context.Context, actor orders.Actor, in NewQuote) (orders.Quote, error) {
	if err := actor.Validate(); err != nil {
		return orders.Quote{}, err
	}
	if err := orders.Require(actor.Role, orders.PermCreateQuote); err != nil {
		return orders.Quote{}, err
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return orders.Quote{}, &orders.ValidationError{Field: "customer_id", Message: "a customer must be selected"}
	}
	if in.DiscountAmount < 0 {
		return orders.Quote{}, &orders.ValidationError{Field: "discount_amount", Message: "must not be negative"}
	}
	for i, it := range in.Items {
		if err := it.validate(i); err != nil {
			return orders.Quote{}, err
		}
	}

	var out orders.Quote
	err := e.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		c, err := tx.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, orders.SeqQuote)
		if err != nil {
			return err
		}
		items, err := resolveLines(ctx, tx, in.Items)
		if err != nil {
			return err
		}
		now := e.clock()
		q := orders.Quote{
			ID:             uuid.NewString(),
			Number:         fmt.Sprintf("Q-%d", 1000+seq),
			CustomerID:     c.ID,
			CustomerName:   c.Name,
			SalesRepID:     actor.ID,
			SalesRepName:   actor.Name,
			Date:           now,
			Status:         orders.StatusDraft,
			Items:          items,
			Notes:          in.Notes,
			DiscountAmount: in.DiscountAmount,
		}
		pricing.Reprice(&q)
		if err := tx.InsertQuote(ctx, q); err != nil {
			return err
		}
		out, err = tx.GetQuote(ctx, q.ID, false)
		return err
	})
	if err != nil {
		return orders.Quote{}, err
	}

	rec := audit.Diff(audit.Entry(actor, "CREATE", orders.EntityQuote, out.ID), nil,
		map[string]any{"number": out.Number, "customer_id": out.CustomerID, "grand_total": out.GrandTotal})
	e.committed(ctx, out, rec)
	e.log.Info("quote created", zap.String("quote_id", out.ID), zap.String("number", out.Number))
	return out, nil
}

// EditQuote applies a header and item edit when (actor role, status) allows it.
func (e *Engine) EditQuote(ctx context.Context, actor orders.Actor, quoteID string, edit QuoteEdit) (EditResult, error) {
	if err := actor.Validate(); err != nil {
		return EditResult{}, err
	}
	if err := edit.validate(); err != nil {
		return EditResult{}, err
	}

	var res EditResult
	var before orders.Quote
	err := e.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		q, err := tx.GetQuote(ctx, quoteID, true)
		if err != nil {
			return err
		}
		if !orders.CanEdit(actor.Role, q.Status) {
			res = EditResult{Quote: q, Reason: fmt.Sprintf("%s cannot edit a %s quote", actor.Role, q.Status)}
			return nil
		}
		if edit.ExpectedVersion != 0 && edit.ExpectedVersion != q.Version {
			return &orders.ConflictError{Resource: "quote " + q.ID}
		}
		before = q.Clone()

		if edit.CustomerID != nil && *edit.CustomerID != q.CustomerID {
			c, err := tx.GetCustomer(ctx, *edit.CustomerID)
			if err != nil {
				return err
			}
			q.CustomerID, q.CustomerName = c.ID, c.Name
		}
		if edit.Notes != nil {
			q.Notes = *edit.Notes
		}
		if edit.DiscountAmount != nil {
			q.DiscountAmount = *edit.DiscountAmount
		}
		if edit.Items != nil {
			items, err := resolveLines(ctx, tx, *edit.Items)
			if err != nil {
				return err
			}
			q.Items = keepCompletion(before.Items, items)
		}
		pricing.Reprice(&q)

		q, err = tx.UpdateQuote(ctx, q)
		if err != nil {
			return err
		}
		res = EditResult{Quote: q, Applied: true}
		return nil
	})
	if err != nil {
		return EditResult{}, err
	}
	if !res.Applied {
		e.log.Info("edit refused", zap.String("quote_id", quoteID),
			zap.String("role", string(actor.Role)), zap.String("status", string(res.Quote.Status)))
		return res, nil
	}

	rec := audit.Diff(audit.Entry(actor, "EDIT", orders.EntityQuote, quoteID), editView(before), editView(res.Quote))
	e.committed(ctx, res.Quote, rec)
	return res, nil
}

func editView(q orders.Quote) map[string]any {
	return map[string]any{
		"customer_id":     q.CustomerID,
		"notes":           q.Notes,
		"discount_amount": q.DiscountAmount,
		"items":           len(q.Items),
		"grand_total":     q.GrandTotal,
	}
}

// resolveLines fills product defaults and assigns ids to new lines.
func resolveLines(ctx context.Context, tx orders.CatalogTx, in []LineInput) ([]orders.LineItem, error) {
	out := make([]orders.LineItem, 0, len(in))
	for _, l := range in {
		it := orders.LineItem{
			ID:              l.ID,
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			Width:           l.Width,
			Height:          l.Height,
			Pieces:          l.Pieces,
			DiscountPercent: l.DiscountPercent,
		}
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if l.ProductID != "" {
			p, err := tx.GetProduct(ctx, l.ProductID)
			if err != nil {
				return nil, err
			}
			if it.ProductName == "" {
				it.ProductName = p.Name
			}
			it.PricePerSqm = p.PricePerSqm
			it.WastagePercent = p.DefaultWastagePercent
		}
		if l.PricePerSqm != nil {
			it.PricePerSqm = *l.PricePerSqm
		}
		if l.WastagePercent != nil {
			it.WastagePercent = *l.WastagePercent
		}
		out = append(out, it)
	}
	return out, nil
}

func keepCompletion(old, next []orders.LineItem) []orders.LineItem {
	done := map[string]bool{}
	for _, it := range old {
		done[it.ID] = it.Completed
	}
	for i := range next {
		next[i].Completed = done[next[i].ID]
	}
	return next
}

// ExtractedItem is a line proposed by the document scanner.
type ExtractedItem struct {
	ProductNameGuess string  `json:"product_name_guess"`
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
	Pieces           float64 `json:"pieces"`
}

// MergeExtractedItems appends scanned lines to the quote as ordinary lines.
// A guess that matches no product still becomes a line, priced at 0 until edited.
func (e *Engine) MergeExtractedItems(ctx context.Context, actor orders.Actor, quoteID string, items []ExtractedItem) (EditResult, error) {
	if len(items) == 0 {
		return EditResult{}, &orders.ValidationError{Field: "items", Message: "nothing to merge"}
	}

	var lines []LineInput
	var version int
	err := e.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		q, err := tx.GetQuote(ctx, quoteID, false)
		if err != nil {
			return err
		}
		version = q.Version
		lines = make([]LineInput, 0, len(q.Items)+len(items))
		for _, it := range q.Items {
			price, wastage := it.PricePerSqm, it.WastagePercent
			lines = append(lines, LineInput{
				ID: it.ID, ProductID: it.ProductID, ProductName: it.ProductName,
				Width: it.Width, Height: it.Height, Pieces: it.Pieces,
				PricePerSqm: &price, WastagePercent: &wastage, DiscountPercent: it.DiscountPercent,
			})
		}
		for _, x := range items {
			l := LineInput{
				ProductName: strings.TrimSpace(x.ProductNameGuess),
				Width:       max(x.Width, 0),
				Height:      max(x.Height, 0),
				Pieces:      max(x.Pieces, 0),
			}
			p, err := tx.FindProductByName(ctx, l.ProductName)
			switch {
			case err == nil:
				l.ProductID, l.ProductName = p.ID, p.Name
			case errors.Is(err, orders.ErrNotFound):
				e.log.Debug("no product matches scanned line", zap.String("guess", x.ProductNameGuess))
			default:
				return err
			}
			lines = append(lines, l)
		}
		return nil
	})
	if err != nil {
		return EditResult{}, err
	}
	return e.EditQuote(ctx, actor, quoteID, QuoteEdit{Items: &lines, ExpectedVersion: version})
}

// ToggleItemCompleted flips the factory checklist mark on one line.
func (e *Engine) ToggleItemCompleted(ctx context.Context, actor orders.Actor, quoteID, itemID string) (orders.Quote, error) {
	if err := actor.Validate(); err != nil {
		return orders.Quote{}, err
	}
	if err := orders.Require(actor.Role, orders.PermToggleItem); err != nil {
		return orders.Quote{}, err
	}

	var out orders.Quote
	var done bool
	err := e.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		q, err := tx.GetQuote(ctx, quoteID, true)
		if err != nil {
			return err
		}
		if q.Status != orders.StatusAccepted && q.Status != orders.StatusInProduction {
			return &orders.IllegalTransition{From: q.Status, Action: "TOGGLE_ITEM"}
		}
		found := false
		for i := range q.Items {
			if q.Items[i].ID == itemID {
				q.Items[i].Completed = !q.Items[i].Completed
				done, found = q.Items[i].Completed, true
				break
			}
		}
		if !found {
			return &orders.NotFoundError{Entity: "line item", ID: itemID}
		}
		out, err = tx.UpdateQuote(ctx, q)
		return err
	})
	if err != nil {
		return orders.Quote{}, err
	}

	rec := audit.Diff(audit.Entry(actor, "TOGGLE_ITEM", orders.EntityQuote, quoteID),
		map[string]any{"item_id": itemID, "completed": !done}, map[string]any{"item_id": itemID, "completed": done})
	e.committed(ctx, out, rec)
	return out, nil
}
