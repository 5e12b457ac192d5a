package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		for _, p := range []orders.Product{
			{ID: "p-1", Name: "Carrara Marble", CurrentStock: 10},
			{ID: "p-2", Name: "Calacatta Gold", CurrentStock: 2},
		} {
			if err := tx.UpsertProduct(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))
	return s
}

func product(t *testing.T, s *Store, id string) orders.Product {
	t.Helper()
	var p orders.Product
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	}))
	return p
}

func TestFailedUnitOfWorkLeavesNoTrace(t *testing.T) {
	s := seeded(t)
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.ReserveStock(ctx, "p-1", 4); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0.0, product(t, s, "p-1").ReservedStock)
}

func TestReserveRefusesMoreThanAvailable(t *testing.T) {
	s := seeded(t)
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.ReserveStock(ctx, "p-2", 2.001)
		return err
	})
	var is *orders.InsufficientStock
	require.ErrorAs(t, err, &is)
	assert.Equal(t, 2.0, is.Available)

	// sub-millimetre noise rounds away
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.ReserveStock(ctx, "p-2", 2.0000001)
		return err
	}))
}

func TestUpdateQuoteChecksVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.InsertQuote(ctx, orders.Quote{ID: "q-1", Status: orders.StatusDraft})
	}))

	var stale orders.Quote
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		q, err := tx.GetQuote(ctx, "q-1", true)
		if err != nil {
			return err
		}
		stale = q
		q.Notes = "first"
		q, err = tx.UpdateQuote(ctx, q)
		assert.Equal(t, 2, q.Version)
		return err
	}))

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		stale.Notes = "second"
		_, err := tx.UpdateQuote(ctx, stale)
		return err
	})
	assert.ErrorIs(t, err, orders.ErrConcurrencyConflict)
}

func TestFindProductByName(t *testing.T) {
	s := seeded(t)
	find := func(name string) (orders.Product, error) {
		var p orders.Product
		err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
			var err error
			p, err = tx.FindProductByName(ctx, name)
			return err
		})
		return p, err
	}

	p, err := find("carrara marble")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)

	p, err = find("Calacatta")
	require.NoError(t, err)
	assert.Equal(t, "p-2", p.ID)

	_, err = find("Basalt")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestMarkOverdueUsesCalendarDays(t *testing.T) {
	s := New()
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		for _, inv := range []orders.Invoice{
			{ID: "due-today", Status: orders.InvoiceIssued, DueDate: today.Add(-time.Hour)},
			{ID: "late", Status: orders.InvoicePartiallyPaid, DueDate: today.AddDate(0, 0, -1)},
			{ID: "paid", Status: orders.InvoicePaid, DueDate: today.AddDate(0, 0, -5)},
		} {
			if err := tx.InsertInvoice(ctx, inv); err != nil {
				return err
			}
		}
		return nil
	}))

	var ids []string
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		ids, err = tx.MarkOverdue(ctx, today)
		return err
	}))
	assert.Equal(t, []string{"late"}, ids)
}

func TestAuditInsertIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := orders.AuditRecord{ID: "a-1", EntityType: orders.EntityQuote, EntityID: "q-1", Action: "CREATE"}
	require.NoError(t, s.InsertAudit(ctx, r))
	require.NoError(t, s.InsertAudit(ctx, r))

	recs, err := s.ListAudit(ctx, orders.EntityQuote, "q-1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestListAuditEmptyFilterMatchesAll(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, r := range []orders.AuditRecord{
		{ID: "a-1", EntityType: orders.EntityQuote, EntityID: "q-1", Action: "CREATE"},
		{ID: "a-2", EntityType: orders.EntityQuote, EntityID: "q-2", Action: "CREATE"},
		{ID: "a-3", EntityType: orders.EntityInvoice, EntityID: "i-1", Action: "ISSUE"},
	} {
		require.NoError(t, s.InsertAudit(ctx, r))
	}

	all, err := s.ListAudit(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	quotes, err := s.ListAudit(ctx, orders.EntityQuote, "")
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
}

func TestGetPayment(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.InsertPayment(ctx, orders.Payment{ID: "pay-1", InvoiceID: "i-1", Amount: 10})
		return err
	}))
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetPayment(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, "i-1", p.InvoiceID)
		_, err = tx.GetPayment(ctx, "pay-2")
		assert.ErrorIs(t, err, orders.ErrNotFound)
		return nil
	}))
}
