package orders

import (
	"errors"
	"fmt"
)

// Error categories. Every structured error below matches exactly one of these
// with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrGuardViolation      = errors.New("guard violation")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrPersistence         = errors.New("persistence failure")
	ErrNotFound            = errors.New("not found")
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

func (e *NotFoundError) Error() string       { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type IllegalTransition struct {
	From   Status `json:"from"`
	Action Action `json:"action"`
}

func (e *IllegalTransition) Error() string {
	return fmt.Sprintf("action %s is not legal from %s", e.Action, e.From)
}
func (e *IllegalTransition) Is(target error) bool { return target == ErrGuardViolation }

type NotPermitted struct {
	Role   Role   `json:"role"`
	Action string `json:"action"`
}

func (e *NotPermitted) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Action)
}
func (e *NotPermitted) Is(target error) bool { return target == ErrGuardViolation }

type CreditHold struct {
	CustomerID string `json:"customer_id"`
}

func (e *CreditHold) Error() string       { return "customer " + e.CustomerID + " is on credit hold" }
func (e *CreditHold) Is(target error) bool { return target == ErrGuardViolation }

type CreditLimitExceeded struct {
	Debt       float64 `json:"debt"`
	Limit      float64 `json:"limit"`
	OrderTotal float64 `json:"order_total"`
}

func (e *CreditLimitExceeded) Error() string {
	return fmt.Sprintf("credit limit exceeded: debt %.2f + order %.2f > limit %.2f", e.Debt, e.OrderTotal, e.Limit)
}
func (e *CreditLimitExceeded) Is(target error) bool { return target == ErrGuardViolation }

type InsufficientStock struct {
	ProductID string  `json:"product_id"`
	Available float64 `json:"available"`
	Requested float64 `json:"requested"`
}

func (e *InsufficientStock) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %.3f, available %.3f", e.ProductID, e.Requested, e.Available)
}
func (e *InsufficientStock) Is(target error) bool { return target == ErrGuardViolation }

type BalanceOutstanding struct {
	BalanceDue float64 `json:"balance_due"`
}

func (e *BalanceOutstanding) Error() string {
	return fmt.Sprintf("balance outstanding: %.2f", e.BalanceDue)
}
func (e *BalanceOutstanding) Is(target error) bool { return target == ErrGuardViolation }

type DepositRequired struct {
	Required float64 `json:"required"`
	Paid     float64 `json:"paid"`
}

func (e *DepositRequired) Error() string {
	if e.Required <= 0 {
		return "a paid deposit invoice is required"
	}
	return fmt.Sprintf("deposit required: paid %.2f of %.2f", e.Paid, e.Required)
}
func (e *DepositRequired) Is(target error) bool { return target == ErrGuardViolation }

type AlreadyInvoiced struct {
	QuoteID string `json:"quote_id"`
}

func (e *AlreadyInvoiced) Error() string       { return "quote " + e.QuoteID + " is already fully invoiced" }
func (e *AlreadyInvoiced) Is(target error) bool { return target == ErrGuardViolation }

// InvoiceLocked is returned when an invoice with payments is voided.
type InvoiceLocked struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
}

func (e *InvoiceLocked) Error() string       { return "invoice " + e.InvoiceID + ": " + e.Reason }
func (e *InvoiceLocked) Is(target error) bool { return target == ErrGuardViolation }

type ConflictError struct {
	Resource string `json:"resource"`
}

func (e *ConflictError) Error() string       { return "concurrent update on " + e.Resource }
func (e *ConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string       { return e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error       { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Kind maps an error to its category sentinel, nil when uncategorised.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrGuardViolation, ErrConcurrencyConflict, ErrPersistence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
