package sales

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klyraworks/fulfil/internal/catalog"
	"github.com/klyraworks/fulfil/internal/inventory"
	"github.com/klyraworks/fulfil/internal/invoicing"
	"github.com/klyraworks/fulfil/internal/payments"
	"github.com/klyraworks/fulfil/internal/platform/db"
	"github.com/klyraworks/fulfil/internal/shared"
)

// sale number scope
const scopeSale = "SAL"

// TxRunner opens the unit of work every transition runs in.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(q db.Querier) error) error
}

// CreditGuard is the only path to customer credit.
type CreditGuard interface {
	Lock(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID) error
	Reserve(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error
	Release(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error
	Check(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error
}

// InventoryLedger is the only path to stock quantities.
type InventoryLedger interface {
	Consume(ctx context.Context, q db.Querier, in inventory.ConsumeInput) (inventory.Movement, error)
	Reverse(ctx context.Context, q db.Querier, m inventory.Movement) (inventory.Movement, error)
	UnreversedSaleMovements(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]inventory.Movement, error)
}

// PaymentLedger records and reverses settlements.
type PaymentLedger interface {
	Record(ctx context.Context, q db.Querier, sale payments.SaleSummary, amount decimal.Decimal, method string) (payments.Payment, decimal.Decimal, error)
	Reverse(ctx context.Context, q db.Querier, sale payments.SaleSummary, paymentID uuid.UUID) (payments.Payment, decimal.Decimal, error)
	Get(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID) (payments.Payment, error)
	ListBySale(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]payments.Payment, error)
}

// Sequence issues sale numbers inside the insert transaction.
type Sequence interface {
	Next(ctx context.Context, q db.Querier, tenantID uuid.UUID, scope string, date time.Time) (string, error)
}

// Catalog supplies the product attributes line pricing needs.
type Catalog interface {
	Product(ctx context.Context, q db.Querier, tenantID, productID uuid.UUID) (catalog.Product, error)
}

// Invoicer is the external invoice authority. Never called with locks held.
type Invoicer interface {
	Issue(ctx context.Context, in invoicing.IssueRequest) (invoicing.Invoice, error)
	IsAuthorized(ctx context.Context, tenantID, saleID uuid.UUID) (bool, error)
}

// Notifier enqueues fire-and-forget notifications after commit.
type Notifier interface {
	SaleConfirmed(ctx context.Context, tenantID, saleID uuid.UUID) error
	SaleVoided(ctx context.Context, tenantID, saleID uuid.UUID) error
}

// Locker serializes transitions per sale across processes.
type Locker interface {
	Acquire(ctx context.Context, tenantID, saleID uuid.UUID) (func(), error)
}

// Auditor records business actions. shared.AuditLogger satisfies it.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts state transitions.
type Metrics interface {
	SaleTransition(from, to State)
}

// Store exposes the sale rows.
type Store interface {
	Insert(ctx context.Context, q db.Querier, sale Sale) error
	// Sale loads the aggregate with lines, without locking.
	Sale(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) (Sale, error)
	// SaleForUpdate loads the aggregate under an exclusive lock on the
	// sale row.
	SaleForUpdate(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) (Sale, error)
	// UpdateDraft rewrites head fields and replaces all lines.
	UpdateDraft(ctx context.Context, q db.Querier, sale Sale) error
	// UpdateHead rewrites head fields only, leaving lines untouched.
	UpdateHead(ctx context.Context, q db.Querier, sale Sale) error
	List(ctx context.Context, q db.Querier, tenantID uuid.UUID, req ListSalesRequest) ([]Sale, int, error)
}

// ServiceConfig wires the service's collaborators.
type ServiceConfig struct {
	DB        db.Querier
	Runner    TxRunner
	Store     Store
	Credit    CreditGuard
	Inventory InventoryLedger
	Payments  PaymentLedger
	Sequence  Sequence
	Catalog   Catalog
	Invoicer  Invoicer
	Notifier  Notifier
	Locks     Locker
	Audit     Auditor
	Metrics   Metrics
	Logger    *slog.Logger
}

// Service drives the sale state machine. Each transition runs in one
// transaction; locks are taken customer row first, stock rows in
// (product, warehouse) order second, sale row last.
type Service struct {
	db        db.Querier
	runner    TxRunner
	store     Store
	credit    CreditGuard
	inventory InventoryLedger
	payments  PaymentLedger
	seq       Sequence
	catalog   Catalog
	invoicer  Invoicer
	notifier  Notifier
	locks     Locker
	audit     Auditor
	metrics   Metrics
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewService constructs a sales service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        cfg.DB,
		runner:    cfg.Runner,
		store:     cfg.Store,
		credit:    cfg.Credit,
		inventory: cfg.Inventory,
		payments:  cfg.Payments,
		seq:       cfg.Sequence,
		catalog:   cfg.Catalog,
		invoicer:  cfg.Invoicer,
		notifier:  cfg.Notifier,
		locks:     cfg.Locks,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		logger:    logger,
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSale creates a draft. Drafts have no external effects: credit is
// checked provisionally, never reserved, and no stock moves.
func (s *Service) CreateSale(ctx context.Context, tenantID, actorID uuid.UUID, req CreateSaleRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidation(err)
	}
	if err := checkDuplicateProducts(req.Lines); err != nil {
		return nil, err
	}

	var sale Sale
	err := s.runner.WithTx(ctx, func(q db.Querier) error {
		lines, subtotal, tax, err := s.buildLines(ctx, q, tenantID, req.Lines)
		if err != nil {
			return err
		}
		total, err := applyOrderDiscount(subtotal, tax, req.OrderDiscount)
		if err != nil {
			return err
		}
		if req.PaymentType == PaymentCredit && total.Sign() > 0 {
			if err := s.credit.Check(ctx, q, tenantID, req.CustomerID, total); err != nil {
				return err
			}
		}

		now := s.now()
		number, err := s.seq.Next(ctx, q, tenantID, scopeSale, now)
		if err != nil {
			return fmt.Errorf("sale number: %w", err)
		}
		sale = Sale{
			ID:            uuid.New(),
			TenantID:      tenantID,
			Number:        number,
			CustomerID:    req.CustomerID,
			WarehouseID:   req.WarehouseID,
			PaymentType:   req.PaymentType,
			State:         StateDraft,
			Subtotal:      subtotal,
			OrderDiscount: req.OrderDiscount,
			Tax:           tax,
			Total:         total,
			Outstanding:   decimal.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for i := range lines {
			lines[i].SaleID = sale.ID
		}
		sale.Lines = lines
		return s.store.Insert(ctx, q, sale)
	})
	if err != nil {
		return nil, err
	}

	s.auditAction(ctx, tenantID, actorID, "sale.create", sale.ID, map[string]any{"number": sale.Number, "total": sale.Total.String()})
	return &sale, nil
}

// UpdateSale replaces a draft's lines and discount. Any other state is a
// conflict.
func (s *Service) UpdateSale(ctx context.Context, tenantID, saleID, actorID uuid.UUID, req UpdateSaleRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidation(err)
	}
	if err := checkDuplicateProducts(req.Lines); err != nil {
		return nil, err
	}

	var sale Sale
	err := s.runner.WithTx(ctx, func(q db.Querier) error {
		locked, err := s.store.SaleForUpdate(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if locked.State != StateDraft {
			return stateConflict(saleID, locked.State, "update")
		}

		lines, subtotal, tax, err := s.buildLines(ctx, q, tenantID, req.Lines)
		if err != nil {
			return err
		}
		total, err := applyOrderDiscount(subtotal, tax, req.OrderDiscount)
		if err != nil {
			return err
		}
		if locked.OnCredit() && total.Sign() > 0 {
			if err := s.credit.Check(ctx, q, tenantID, locked.CustomerID, total); err != nil {
				return err
			}
		}

		for i := range lines {
			lines[i].SaleID = locked.ID
		}
		locked.Lines = lines
		locked.Subtotal = subtotal
		locked.OrderDiscount = req.OrderDiscount
		locked.Tax = tax
		locked.Total = total
		locked.UpdatedAt = s.now()
		if err := s.store.UpdateDraft(ctx, q, locked); err != nil {
			return err
		}
		sale = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditAction(ctx, tenantID, actorID, "sale.update", sale.ID, map[string]any{"total": sale.Total.String()})
	return &sale, nil
}

// ConfirmSale is the single transition with external side effects. One
// transaction reserves credit, consumes every line's stock and flips the
// state; any failure rolls the whole unit back.
func (s *Service) ConfirmSale(ctx context.Context, tenantID, saleID, actorID uuid.UUID, req ConfirmSaleRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidation(err)
	}
	if req.Settlement != nil && req.Settlement.Amount.Sign() <= 0 {
		return nil, shared.Invalid("settlement.amount", "must be positive")
	}

	release, err := s.locks.Acquire(ctx, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	defer release()

	var sale Sale
	err = s.runner.WithTx(ctx, func(q db.Querier) error {
		cur, err := s.store.Sale(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if cur.State != StateDraft {
			return stateConflict(saleID, cur.State, "confirm")
		}

		if cur.OnCredit() && cur.Total.Sign() > 0 {
			if err := s.credit.Reserve(ctx, q, tenantID, cur.CustomerID, cur.Total); err != nil {
				return err
			}
		}
		for _, line := range sortedLines(cur.Lines) {
			saleRef := cur.ID
			_, err := s.inventory.Consume(ctx, q, inventory.ConsumeInput{
				TenantID:    tenantID,
				ProductID:   line.ProductID,
				WarehouseID: cur.WarehouseID,
				Qty:         line.Qty,
				SaleID:      &saleRef,
				Note:        "sale " + cur.Number,
			})
			if err != nil {
				return err
			}
		}

		locked, err := s.store.SaleForUpdate(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if locked.State != StateDraft {
			return stateConflict(saleID, locked.State, "confirm")
		}
		now := s.now()
		locked.State = StateConfirmed
		locked.ConfirmedAt = &now
		locked.Outstanding = locked.Total
		locked.UpdatedAt = now

		if req.Settlement != nil {
			_, outstanding, err := s.payments.Record(ctx, q, saleSummary(locked), req.Settlement.Amount, req.Settlement.Method)
			if err != nil {
				return err
			}
			locked.Outstanding = outstanding
		}
		if err := s.store.UpdateHead(ctx, q, locked); err != nil {
			return err
		}
		sale = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyConfirmed(ctx, &sale)
	s.countTransition(StateDraft, StateConfirmed)
	s.auditAction(ctx, tenantID, actorID, "sale.confirm", sale.ID, map[string]any{"number": sale.Number, "outstanding": sale.Outstanding.String()})
	return &sale, nil
}

// InvoiceSale asks the invoice authority to issue a document, then flips
// confirmed to invoiced. No stock or credit effects; the collaborator is
// called with no locks held.
func (s *Service) InvoiceSale(ctx context.Context, tenantID, saleID, actorID uuid.UUID) (*Sale, error) {
	cur, err := s.store.Sale(ctx, s.db, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	if cur.State != StateConfirmed {
		return nil, stateConflict(saleID, cur.State, "invoice")
	}

	inv, err := s.invoicer.Issue(ctx, invoicing.IssueRequest{
		TenantID:   tenantID,
		SaleID:     cur.ID,
		SaleNumber: cur.Number,
		CustomerID: cur.CustomerID,
		Total:      cur.Total,
		Tax:        cur.Tax,
		IssuedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}

	var sale Sale
	err = s.runner.WithTx(ctx, func(q db.Querier) error {
		locked, err := s.store.SaleForUpdate(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if locked.State != StateConfirmed {
			return stateConflict(saleID, locked.State, "invoice")
		}
		now := s.now()
		locked.State = StateInvoiced
		locked.InvoiceNumber = &inv.Number
		locked.InvoiceAuthorized = inv.Authorized
		locked.InvoicedAt = &now
		locked.UpdatedAt = now
		if err := s.store.UpdateHead(ctx, q, locked); err != nil {
			return err
		}
		sale = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.countTransition(StateConfirmed, StateInvoiced)
	s.auditAction(ctx, tenantID, actorID, "sale.invoice", sale.ID, map[string]any{"invoice_number": inv.Number})
	return &sale, nil
}

// VoidSale reverses exactly what confirm applied: every non-reversed stock
// movement is countered and only the unpaid remainder of reserved credit
// is released. Authorized invoices cannot be voided.
func (s *Service) VoidSale(ctx context.Context, tenantID, saleID, actorID uuid.UUID, req VoidSaleRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidation(err)
	}

	// Unlocked pre-read so the collaborator round trip happens before any
	// lock is taken. All void decisions below use fresh state read under
	// the mutex.
	pre, err := s.store.Sale(ctx, s.db, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	if pre.State == StateVoided {
		return nil, stateConflict(saleID, pre.State, "void")
	}
	if pre.State == StateInvoiced {
		if pre.InvoiceAuthorized {
			return nil, ErrVoidBlocked
		}
		authorized, err := s.invoicer.IsAuthorized(ctx, tenantID, saleID)
		if err != nil {
			return nil, fmt.Errorf("authorization check: %w", err)
		}
		if authorized {
			return nil, ErrVoidBlocked
		}
	}

	release, err := s.locks.Acquire(ctx, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		sale Sale
		from State
	)
	err = s.runner.WithTx(ctx, func(q db.Querier) error {
		cur, err := s.store.Sale(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if cur.State == StateVoided {
			return stateConflict(saleID, cur.State, "void")
		}
		if cur.State == StateInvoiced && cur.InvoiceAuthorized {
			return ErrVoidBlocked
		}
		if cur.OnCredit() && cur.State != StateDraft {
			if err := s.credit.Lock(ctx, q, tenantID, cur.CustomerID); err != nil {
				return err
			}
		}

		movements, err := s.inventory.UnreversedSaleMovements(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		for _, m := range movements {
			if _, err := s.inventory.Reverse(ctx, q, m); err != nil {
				return err
			}
		}

		locked, err := s.store.SaleForUpdate(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if locked.State == StateVoided {
			return stateConflict(saleID, locked.State, "void")
		}
		if locked.State == StateInvoiced && locked.InvoiceAuthorized {
			return ErrVoidBlocked
		}
		if locked.OnCredit() && locked.State != StateDraft && locked.Outstanding.Sign() > 0 {
			if err := s.credit.Release(ctx, q, tenantID, locked.CustomerID, locked.Outstanding); err != nil {
				return err
			}
		}

		now := s.now()
		reason := req.Reason
		from = locked.State
		locked.State = StateVoided
		locked.Outstanding = decimal.Zero
		locked.VoidReason = &reason
		locked.VoidedAt = &now
		locked.UpdatedAt = now
		if err := s.store.UpdateHead(ctx, q, locked); err != nil {
			return err
		}
		sale = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.countTransition(from, StateVoided)
	s.notifyVoided(ctx, &sale)
	s.auditAction(ctx, tenantID, actorID, "sale.void", sale.ID, map[string]any{"reason": req.Reason})
	return &sale, nil
}

// RecordPayment settles part of a confirmed or invoiced sale.
func (s *Service) RecordPayment(ctx context.Context, tenantID, saleID, actorID uuid.UUID, req RecordPaymentRequest) (payments.Payment, *Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return payments.Payment{}, nil, asValidation(err)
	}
	if req.Amount.Sign() <= 0 {
		return payments.Payment{}, nil, shared.Invalid("amount", "must be positive")
	}

	release, err := s.locks.Acquire(ctx, tenantID, saleID)
	if err != nil {
		return payments.Payment{}, nil, err
	}
	defer release()

	var (
		sale    Sale
		payment payments.Payment
	)
	err = s.runner.WithTx(ctx, func(q db.Querier) error {
		cur, err := s.store.Sale(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if cur.State != StateConfirmed && cur.State != StateInvoiced {
			return stateConflict(saleID, cur.State, "pay")
		}
		if cur.OnCredit() {
			if err := s.credit.Lock(ctx, q, tenantID, cur.CustomerID); err != nil {
				return err
			}
		}

		locked, err := s.store.SaleForUpdate(ctx, q, tenantID, saleID)
		if err != nil {
			return err
		}
		if locked.State != StateConfirmed && locked.State != StateInvoiced {
			return stateConflict(saleID, locked.State, "pay")
		}

		p, outstanding, err := s.payments.Record(ctx, q, saleSummary(locked), req.Amount, req.Method)
		if err != nil {
			return err
		}
		locked.Outstanding = outstanding
		locked.UpdatedAt = s.now()
		if err := s.store.UpdateHead(ctx, q, locked); err != nil {
			return err
		}
		sale = locked
		payment = p
		return nil
	})
	if err != nil {
		return payments.Payment{}, nil, err
	}

	s.auditAction(ctx, tenantID, actorID, "payment.record", payment.ID, map[string]any{"number": payment.Number, "amount": payment.Amount.String()})
	return payment, &sale, nil
}

// ReversePayment voids a payment, re-encumbering the credit it had freed.
func (s *Service) ReversePayment(ctx context.Context, tenantID, paymentID, actorID uuid.UUID) (payments.Payment, *Sale, error) {
	p, err := s.payments.Get(ctx, s.db, tenantID, paymentID)
	if err != nil {
		return payments.Payment{}, nil, err
	}

	release, err := s.locks.Acquire(ctx, tenantID, p.SaleID)
	if err != nil {
		return payments.Payment{}, nil, err
	}
	defer release()

	var (
		sale     Sale
		reversed payments.Payment
	)
	err = s.runner.WithTx(ctx, func(q db.Querier) error {
		cur, err := s.store.Sale(ctx, q, tenantID, p.SaleID)
		if err != nil {
			return err
		}
		if cur.State == StateVoided {
			return stateConflict(cur.ID, cur.State, "reverse payment")
		}
		if cur.OnCredit() {
			if err := s.credit.Lock(ctx, q, tenantID, cur.CustomerID); err != nil {
				return err
			}
		}

		locked, err := s.store.SaleForUpdate(ctx, q, tenantID, p.SaleID)
		if err != nil {
			return err
		}
		if locked.State == StateVoided {
			return stateConflict(locked.ID, locked.State, "reverse payment")
		}

		rp, outstanding, err := s.payments.Reverse(ctx, q, saleSummary(locked), paymentID)
		if err != nil {
			return err
		}
		locked.Outstanding = outstanding
		locked.UpdatedAt = s.now()
		if err := s.store.UpdateHead(ctx, q, locked); err != nil {
			return err
		}
		sale = locked
		reversed = rp
		return nil
	})
	if err != nil {
		return payments.Payment{}, nil, err
	}

	s.auditAction(ctx, tenantID, actorID, "payment.reverse", reversed.ID, map[string]any{"number": reversed.Number, "amount": reversed.Amount.String()})
	return reversed, &sale, nil
}

// GetSale retrieves a sale with its lines.
func (s *Service) GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (*Sale, error) {
	sale, err := s.store.Sale(ctx, s.db, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListSales returns a paginated list of sales.
func (s *Service) ListSales(ctx context.Context, tenantID uuid.UUID, req ListSalesRequest) ([]Sale, int, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, asValidation(err)
	}
	if req.Limit == 0 {
		req.Limit = 50
	}
	return s.store.List(ctx, s.db, tenantID, req)
}

// ListPayments returns all payments against a sale, reversed included.
func (s *Service) ListPayments(ctx context.Context, tenantID, saleID uuid.UUID) ([]payments.Payment, error) {
	return s.payments.ListBySale(ctx, s.db, tenantID, saleID)
}

func (s *Service) buildLines(ctx context.Context, q db.Querier, tenantID uuid.UUID, reqs []LineRequest) ([]SaleLine, decimal.Decimal, decimal.Decimal, error) {
	lines := make([]SaleLine, 0, len(reqs))
	subtotal, tax := decimal.Zero, decimal.Zero
	for i, lr := range reqs {
		if lr.UnitPrice.Sign() < 0 {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].unit_price", i), "must not be negative")
		}
		if lr.LineDiscount.Sign() < 0 {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].line_discount", i), "must not be negative")
		}
		gross := decimal.NewFromInt(lr.Qty).Mul(lr.UnitPrice)
		if lr.LineDiscount.GreaterThan(gross) {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].line_discount", i), "exceeds line amount")
		}

		product, err := s.catalog.Product(ctx, q, tenantID, lr.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, decimal.Zero, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].product_id", i), "unknown product")
			}
			return nil, decimal.Zero, decimal.Zero, err
		}

		lineSubtotal := gross.Sub(lr.LineDiscount)
		taxAmount := decimal.Zero
		rate := decimal.Zero
		if product.TaxApplicable {
			rate = product.TaxRate
			taxAmount = lineSubtotal.Mul(rate)
		}
		lines = append(lines, SaleLine{
			ID:           uuid.New(),
			ProductID:    lr.ProductID,
			Qty:          lr.Qty,
			UnitPrice:    lr.UnitPrice,
			LineDiscount: lr.LineDiscount,
			TaxRate:      rate,
			TaxAmount:    taxAmount,
			LineTotal:    lineSubtotal.Add(taxAmount),
		})
		subtotal = subtotal.Add(lineSubtotal)
		tax = tax.Add(taxAmount)
	}
	return lines, subtotal, tax, nil
}

func applyOrderDiscount(subtotal, tax, discount decimal.Decimal) (decimal.Decimal, error) {
	if discount.Sign() < 0 {
		return decimal.Zero, shared.Invalid("order_discount", "must not be negative")
	}
	gross := subtotal.Add(tax)
	if discount.GreaterThan(gross) {
		return decimal.Zero, shared.Invalid("order_discount", "exceeds sale amount")
	}
	return gross.Sub(discount), nil
}

func checkDuplicateProducts(lines []LineRequest) error {
	seen := make(map[uuid.UUID]bool, len(lines))
	for i, l := range lines {
		if seen[l.ProductID] {
			return shared.Invalid(fmt.Sprintf("lines[%d].product_id", i), "duplicate product")
		}
		seen[l.ProductID] = true
	}
	return nil
}

// sortedLines orders by product ID so stock row locks are always taken in
// the same order across concurrent sales.
func sortedLines(lines []SaleLine) []SaleLine {
	out := make([]SaleLine, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0
	})
	return out
}

func saleSummary(s Sale) payments.SaleSummary {
	return payments.SaleSummary{
		SaleID:      s.ID,
		TenantID:    s.TenantID,
		CustomerID:  s.CustomerID,
		Total:       s.Total,
		Outstanding: s.Outstanding,
		OnCredit:    s.OnCredit(),
	}
}

func asValidation(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return shared.Invalid(f.Field(), "failed "+f.Tag()+" validation")
	}
	return err
}

func (s *Service) notifyConfirmed(ctx context.Context, sale *Sale) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SaleConfirmed(ctx, sale.TenantID, sale.ID); err != nil {
		s.logger.Warn("confirm notification enqueue failed", "sale", sale.ID, "error", err)
	}
}

func (s *Service) notifyVoided(ctx context.Context, sale *Sale) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SaleVoided(ctx, sale.TenantID, sale.ID); err != nil {
		s.logger.Warn("void notification enqueue failed", "sale", sale.ID, "error", err)
	}
}

func (s *Service) countTransition(from, to State) {
	if s.metrics != nil {
		s.metrics.SaleTransition(from, to)
	}
}

func (s *Service) auditAction(ctx context.Context, tenantID, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		TenantID: tenantID.String(),
		ActorID:  actorID.String(),
		Action:   action,
		Entity:   "sale",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}
