package orders

import "time"

type Product struct {
	ID                    string    `json:"id"`
	SKU                   string    `json:"sku"`
	Name                  string    `json:"name"`
	PricePerSqm           float64   `json:"price_per_sqm"`
	DefaultWastagePercent float64   `json:"default_wastage_percent"`
	ThicknessMM           float64   `json:"thickness_mm"`
	CurrentStock          float64   `json:"current_stock"`  // on hand, m²
	ReservedStock         float64   `json:"reserved_stock"` // committed to open orders, m²
	ReorderPoint          float64   `json:"reorder_point"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (p Product) Available() float64 { return p.CurrentStock - p.ReservedStock }

func (p Product) NeedsReorder() bool { return p.Available() <= p.ReorderPoint }

type Customer struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CompanyName string  `json:"company_name,omitempty"`
	Email       string  `json:"email,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	CreditLimit float64 `json:"credit_limit"` // 0 = unlimited
	CreditHold  bool    `json:"credit_hold"`
}

type LineItem struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Pieces          float64 `json:"pieces"`
	PricePerSqm     float64 `json:"price_per_sqm"`
	WastagePercent  float64 `json:"wastage_percent"`
	DiscountPercent float64 `json:"discount_percent"`
	TotalSqm        float64 `json:"total_sqm"`
	RawPrice        float64 `json:"raw_price"`
	FinalPrice      float64 `json:"final_price"`
	Completed       bool    `json:"completed"`
}

type Quote struct {
	ID                 string     `json:"id"`
	Number             string     `json:"number"`
	OrderNumber        string     `json:"order_number,omitempty"`
	CustomerID         string     `json:"customer_id"`
	CustomerName       string     `json:"customer_name"`
	SalesRepID         string     `json:"sales_rep_id"`
	SalesRepName       string     `json:"sales_rep_name"`
	Date               time.Time  `json:"date"`
	Status             Status     `json:"status"`
	Items              []LineItem `json:"items"`
	Notes              string     `json:"notes,omitempty"`
	DiscountAmount     float64    `json:"discount_amount"`
	SubTotal           float64    `json:"sub_total"`
	Tax                float64    `json:"tax"`
	GrandTotal         float64    `json:"grand_total"`
	StockReserved      bool       `json:"stock_reserved"`
	StockDeducted      bool       `json:"stock_deducted"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate items without aliasing.
func (q Quote) Clone() Quote {
	c := q
	c.Items = append([]LineItem(nil), q.Items...)
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// SqmByProduct aggregates line sqm per product so each product is reserved once.
func (q Quote) SqmByProduct() ([]string, map[string]float64) {
	var ids []string
	out := map[string]float64{}
	for _, it := range q.Items {
		if it.ProductID == "" || it.TotalSqm <= 0 {
			continue
		}
		if _, ok := out[it.ProductID]; !ok {
			ids = append(ids, it.ProductID)
		}
		out[it.ProductID] += it.TotalSqm
	}
	return ids, out
}

type ApprovalLog struct {
	ID        string    `json:"id"`
	QuoteID   string    `json:"quote_id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	ActorRole Role      `json:"actor_role"`
	Action    Action    `json:"action"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type InvoiceType string

const (
	InvoiceDeposit    InvoiceType = "Deposit"
	InvoiceFinal      InvoiceType = "Final"
	InvoiceStandard   InvoiceType = "Standard"
	InvoiceCreditNote InvoiceType = "CreditNote"
)

func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceDeposit, InvoiceFinal, InvoiceStandard, InvoiceCreditNote:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoiceIssued        InvoiceStatus = "Issued"
	InvoicePartiallyPaid InvoiceStatus = "PartiallyPaid"
	InvoicePaid          InvoiceStatus = "Paid"
	InvoiceOverdue       InvoiceStatus = "Overdue"
	InvoiceVoid          InvoiceStatus = "Void"
)

// Open invoices carry receivable balance.
func (s InvoiceStatus) Open() bool {
	return s == InvoiceIssued || s == InvoicePartiallyPaid || s == InvoiceOverdue
}

type Invoice struct {
	ID          string        `json:"id"`
	Number      string        `json:"number"`
	QuoteID     string        `json:"quote_id"`
	OrderNumber string        `json:"order_number"`
	CustomerID  string        `json:"customer_id"`
	Type        InvoiceType   `json:"type"`
	Status      InvoiceStatus `json:"status"`
	TotalAmount float64       `json:"total_amount"`
	AmountPaid  float64       `json:"amount_paid"`
	BalanceDue  float64       `json:"balance_due"`
	IssuedAt    time.Time     `json:"issued_at"`
	DueDate     time.Time     `json:"due_date"`
	Notes       string        `json:"notes,omitempty"`
	VoidReason  string        `json:"void_reason,omitempty"`
}

// Billable invoices count toward what the customer owes on the quote.
func (i Invoice) Billable() bool {
	return i.Status != InvoiceVoid && i.Type != InvoiceCreditNote
}

type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "BankTransfer"
	PaymentCash         PaymentMethod = "Cash"
	PaymentCheck        PaymentMethod = "Check"
	PaymentCard         PaymentMethod = "Card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentBankTransfer, PaymentCash, PaymentCheck, PaymentCard:
		return true
	}
	return false
}

type Payment struct {
	ID         string        `json:"id"`
	InvoiceID  string        `json:"invoice_id"`
	QuoteID    string        `json:"quote_id"`
	Amount     float64       `json:"amount"`
	Method     PaymentMethod `json:"method"`
	Reference  string        `json:"reference,omitempty"`
	PaidAt     time.Time     `json:"paid_at"`
	RecordedBy string        `json:"recorded_by"`
}

type MovementKind string

const (
	MoveAdjust      MovementKind = "ADJUST"
	MoveProcurement MovementKind = "PROCUREMENT"
	MoveReserve     MovementKind = "RESERVE"
	MoveRelease     MovementKind = "RELEASE"
	MoveDeduct      MovementKind = "DEDUCT"
)

type StockMovement struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	Kind      MovementKind `json:"kind"`
	Delta     float64      `json:"delta"`
	Reference string       `json:"reference,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	ActorID   string       `json:"actor_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type AuditRecord struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	EntityQuote    = "Quote"
	EntityProduct  = "Product"
	EntityInvoice  = "Invoice"
	EntityPayment  = "Payment"
	EntitySettings = "Settings"
)

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

const SettingDepositThresholdPct = "depositThresholdPct"
