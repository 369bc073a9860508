// Package store provides an in-memory engine.Store implementation.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/casaclean/booking-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds everything behind one mutex. The conditional writes
// (CreateBookingIfAbsent, CompletePendingPurchase, CreditOnce) check and
// mutate under the same lock, which is the in-memory equivalent of the
// SQLite store's UNIQUE constraints.
type Memory struct {
	mu sync.RWMutex

	schedules map[engine.ScheduleID]*engine.RecurringSchedule
	bookings  map[engine.BookingID]*engine.Booking
	customers map[engine.CustomerID]*engine.Customer
	cleaners  map[engine.CleanerID]*engine.Cleaner
	purchases map[string]*engine.PendingPurchase
	credits   []*engine.CreditTransaction

	// paymentRefs indexes bookings by payment reference for the atomic
	// insert-if-absent path.
	paymentRefs map[string]engine.BookingID

	creditRefs map[string]bool

	pricing  *engine.PricingConfig
	earnings *engine.EarningsConfig

	nextSeq int
}

func NewMemory() *Memory {
	return &Memory{
		schedules:   make(map[engine.ScheduleID]*engine.RecurringSchedule),
		bookings:    make(map[engine.BookingID]*engine.Booking),
		customers:   make(map[engine.CustomerID]*engine.Customer),
		cleaners:    make(map[engine.CleanerID]*engine.Cleaner),
		purchases:   make(map[string]*engine.PendingPurchase),
		paymentRefs: make(map[string]engine.BookingID),
		creditRefs:  make(map[string]bool),
	}
}

func (m *Memory) Close() error { return nil }

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) ActiveSchedules(_ context.Context) ([]*engine.RecurringSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*engine.RecurringSchedule
	for _, s := range m.schedules {
		if s.Active {
			copied := *s
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetSchedule(_ context.Context, id engine.ScheduleID) (*engine.RecurringSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, engine.ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

func (m *Memory) CreateSchedule(_ context.Context, s *engine.RecurringSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		m.nextSeq++
		s.ID = engine.ScheduleID(fmt.Sprintf("sched-%d", m.nextSeq))
	}
	copied := *s
	m.schedules[s.ID] = &copied
	return nil
}

func (m *Memory) MarkGenerated(_ context.Context, id engine.ScheduleID, p engine.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, engine.ErrNotFound)
	}
	// Monotonic: never move the marker backwards.
	if s.LastGenerated != nil && !s.LastGenerated.Before(p) {
		return nil
	}
	marker := p
	s.LastGenerated = &marker
	return nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (m *Memory) CreateBooking(_ context.Context, b *engine.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBookingLocked(b)
}

func (m *Memory) CreateBookingIfAbsent(_ context.Context, b *engine.Booking) (*engine.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.PaymentReference != "" {
		if existingID, ok := m.paymentRefs[b.PaymentReference]; ok {
			existing := *m.bookings[existingID]
			return &existing, engine.ErrDuplicateApplication
		}
	}
	if err := m.createBookingLocked(b); err != nil {
		return nil, err
	}
	copied := *b
	return &copied, nil
}

func (m *Memory) createBookingLocked(b *engine.Booking) error {
	if b.ID == "" {
		b.ID = engine.NewBookingID()
	}
	if b.Reference == "" {
		b.Reference = engine.NewBookingReference()
	}
	if b.PaymentReference != "" {
		if _, ok := m.paymentRefs[b.PaymentReference]; ok {
			return fmt.Errorf("payment reference %s: %w", b.PaymentReference, engine.ErrDuplicateApplication)
		}
		m.paymentRefs[b.PaymentReference] = b.ID
	}
	copied := *b
	m.bookings[b.ID] = &copied
	return nil
}

func (m *Memory) GetBooking(_ context.Context, id engine.BookingID) (*engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, engine.ErrNotFound)
	}
	copied := *b
	return &copied, nil
}

func (m *Memory) GetBookingByReference(_ context.Context, reference string) (*engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.bookings {
		if b.Reference == reference {
			copied := *b
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("booking reference %s: %w", reference, engine.ErrNotFound)
}

func (m *Memory) GetBookingByPaymentReference(_ context.Context, paymentRef string) (*engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.paymentRefs[paymentRef]
	if !ok {
		return nil, fmt.Errorf("payment reference %s: %w", paymentRef, engine.ErrNotFound)
	}
	copied := *m.bookings[id]
	return &copied, nil
}

func (m *Memory) LatestRecurringBooking(_ context.Context, q engine.LatestRecurringQuery) (*engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *engine.Booking
	for _, b := range m.bookings {
		if !b.IsRecurring || b.Frequency != q.Frequency {
			continue
		}
		if !strings.EqualFold(b.Email, q.Email) || b.Address.Street != q.Street {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, engine.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *Memory) RecurringGroupTemplates(_ context.Context) ([]*engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byGroup := make(map[string]*engine.Booking)
	for _, b := range m.bookings {
		if !b.IsRecurring || b.RecurringGroupID == "" {
			continue
		}
		cur, ok := byGroup[b.RecurringGroupID]
		if !ok || sequenceOf(b) < sequenceOf(cur) {
			byGroup[b.RecurringGroupID] = b
		}
	}

	var result []*engine.Booking
	for _, b := range byGroup {
		copied := *b
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RecurringGroupID < result[j].RecurringGroupID })
	return result, nil
}

func sequenceOf(b *engine.Booking) int {
	if b.RecurringSequence == nil {
		return int(^uint(0) >> 1)
	}
	return *b.RecurringSequence
}

func (m *Memory) UpdatePayment(_ context.Context, id engine.BookingID, status engine.PaymentStatus, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, engine.ErrNotFound)
	}
	if paymentRef != "" && paymentRef != b.PaymentReference {
		if other, taken := m.paymentRefs[paymentRef]; taken && other != id {
			return fmt.Errorf("payment reference %s: %w", paymentRef, engine.ErrDuplicateApplication)
		}
		m.paymentRefs[paymentRef] = id
		b.PaymentReference = paymentRef
	}
	b.PaymentStatus = status
	if status == engine.PaymentCompleted {
		b.Status = engine.BookingConfirmed
	}
	return nil
}

// =============================================================================
// CUSTOMERS / CLEANERS
// =============================================================================

func (m *Memory) GetCustomer(_ context.Context, id engine.CustomerID) (*engine.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, engine.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *Memory) GetCustomerByEmail(_ context.Context, email string) (*engine.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.customers {
		if strings.EqualFold(c.Email, email) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("customer %s: %w", email, engine.ErrNotFound)
}

func (m *Memory) CreateCustomer(_ context.Context, c *engine.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		m.nextSeq++
		c.ID = engine.CustomerID(fmt.Sprintf("cust-%d", m.nextSeq))
	}
	copied := *c
	m.customers[c.ID] = &copied
	return nil
}

func (m *Memory) PutCleaner(c *engine.Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.cleaners[c.ID] = &copied
}

func (m *Memory) GetCleaner(_ context.Context, id engine.CleanerID) (*engine.Cleaner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cleaners[id]
	if !ok {
		return nil, fmt.Errorf("cleaner %s: %w", id, engine.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

// =============================================================================
// PAYMENT INTENTS
// =============================================================================

func (m *Memory) CreatePendingPurchase(_ context.Context, p *engine.PendingPurchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.purchases[p.PaymentReference]; ok {
		return fmt.Errorf("purchase %s: %w", p.PaymentReference, engine.ErrDuplicateApplication)
	}
	copied := *p
	m.purchases[p.PaymentReference] = &copied
	return nil
}

func (m *Memory) CompletePendingPurchase(_ context.Context, paymentRef string) (*engine.PendingPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.purchases[paymentRef]
	if !ok || p.Status != engine.PurchasePending {
		return nil, fmt.Errorf("pending purchase %s: %w", paymentRef, engine.ErrNotFound)
	}
	now := time.Now()
	p.Status = engine.PurchaseCompleted
	p.CompletedAt = &now
	copied := *p
	return &copied, nil
}

func (m *Memory) CreditOnce(_ context.Context, tx *engine.CreditTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creditRefs[tx.PaymentReference] {
		return fmt.Errorf("credit %s: %w", tx.PaymentReference, engine.ErrDuplicateApplication)
	}
	m.creditRefs[tx.PaymentReference] = true
	copied := *tx
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.credits = append(m.credits, &copied)
	return nil
}

func (m *Memory) CreditBalance(_ context.Context, id engine.CustomerID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	balance := decimal.Zero
	for _, tx := range m.credits {
		if tx.CustomerID != id {
			continue
		}
		switch tx.Type {
		case engine.CreditPurchase:
			balance = balance.Add(tx.Amount)
		case engine.CreditUsage:
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) PricingConfig(_ context.Context) (engine.PricingConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.pricing != nil {
		return *m.pricing, nil
	}
	return engine.DefaultPricingConfig(), nil
}

func (m *Memory) EarningsConfig(_ context.Context) (engine.EarningsConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.earnings != nil {
		return *m.earnings, nil
	}
	return engine.DefaultEarningsConfig(), nil
}

// SetPricingConfig overrides the served pricing configuration.
func (m *Memory) SetPricingConfig(cfg engine.PricingConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pricing = &cfg
}

// SetEarningsConfig overrides the served earnings configuration.
func (m *Memory) SetEarningsConfig(cfg engine.EarningsConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnings = &cfg
}
