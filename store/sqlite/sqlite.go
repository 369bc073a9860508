/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Production persistence for schedules, bookings, customers, cleaners,
  payment intents, and the credit ledger. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

IDEMPOTENCY ENFORCEMENT:
  Exactly-once payment application rests on UNIQUE constraints, not on
  application-level pre-checks:
  - bookings.payment_reference UNIQUE: CreateBookingIfAbsent maps the
    constraint violation to ErrDuplicateApplication
  - credit_transactions.payment_reference UNIQUE: one credit per reference
  - pending_purchases: completion is a conditional UPDATE on
    status='pending', so exactly one caller transitions it

KEY TABLES:
  recurring_schedules: Standing generation instructions + period marker
  bookings:            Occurrences with price snapshots
  customers, cleaners: Contact and payout-tier data
  pending_purchases:   Voucher purchase intents keyed by payment reference
  credit_transactions: Append-only stored-credit ledger
  settings:            JSON configuration snapshots (pricing, earnings)

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/bookings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/casaclean/booking-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_email
		ON customers(email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS cleaners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		total_jobs INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS recurring_schedules (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		service_type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		day_of_week INTEGER,
		day_of_month INTEGER,
		preferred_time TEXT,
		bedrooms INTEGER NOT NULL DEFAULT 0,
		bathrooms INTEGER NOT NULL DEFAULT 1,
		extras_json TEXT,
		address_street TEXT,
		address_suburb TEXT,
		address_city TEXT,
		cleaner_id TEXT,
		notes TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_generated_period TEXT,
		total_amount_minor INTEGER,
		cleaner_earnings_minor INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_active
		ON recurring_schedules(is_active);
	CREATE INDEX IF NOT EXISTS idx_schedules_customer
		ON recurring_schedules(customer_id);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		service_type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		bedrooms INTEGER NOT NULL DEFAULT 0,
		bathrooms INTEGER NOT NULL DEFAULT 1,
		office_size TEXT,
		fitted_rooms INTEGER NOT NULL DEFAULT 0,
		loose_carpets INTEGER NOT NULL DEFAULT 0,
		furnished BOOLEAN NOT NULL DEFAULT FALSE,
		extras_json TEXT,
		scheduled_date TEXT NOT NULL,
		scheduled_time TEXT,
		address_street TEXT,
		address_suburb TEXT,
		address_city TEXT,
		first_name TEXT,
		last_name TEXT,
		email TEXT,
		phone TEXT,
		cleaner_preference TEXT,
		cleaner_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_reference TEXT,
		base_price TEXT,
		room_price TEXT,
		extras_price TEXT,
		furniture_fee TEXT,
		subtotal TEXT,
		frequency_discount TEXT,
		discount_code_discount TEXT,
		service_fee TEXT,
		tip TEXT,
		total_amount TEXT,
		cleaner_earnings TEXT,
		cleaner_earnings_pct TEXT,
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		recurring_group_id TEXT,
		recurring_sequence INTEGER,
		special_instructions TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: payment_reference uniqueness is the exactly-once backstop
	-- for retried webhook deliveries.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_payment_reference
		ON bookings(payment_reference) WHERE payment_reference IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_bookings_email
		ON bookings(email COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_bookings_recurring_group
		ON bookings(recurring_group_id) WHERE recurring_group_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS pending_purchases (
		payment_reference TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		voucher_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS credit_transactions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		payment_reference TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credit_transactions_customer
		ON credit_transactions(customer_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULES
// =============================================================================

const scheduleColumns = `id, customer_id, service_type, frequency, day_of_week, day_of_month,
	preferred_time, bedrooms, bathrooms, extras_json, address_street, address_suburb,
	address_city, cleaner_id, notes, is_active, last_generated_period,
	total_amount_minor, cleaner_earnings_minor, created_at`

func (s *Store) ActiveSchedules(ctx context.Context) ([]*engine.RecurringSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + scheduleColumns + " FROM recurring_schedules WHERE is_active = TRUE ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query schedules: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var schedules []*engine.RecurringSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

func (s *Store) GetSchedule(ctx context.Context, id engine.ScheduleID) (*engine.RecurringSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + scheduleColumns + " FROM recurring_schedules WHERE id = ?"
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("%w: query schedule: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("schedule %s: %w", id, engine.ErrNotFound)
	}
	return scanSchedule(rows)
}

func (s *Store) CreateSchedule(ctx context.Context, sched *engine.RecurringSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sched.ID == "" {
		sched.ID = engine.ScheduleID("sched-" + engine.NewRecurringGroupID())
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now().UTC()
	}

	extrasJSON, _ := json.Marshal(sched.Extras)

	var dayOfWeek, dayOfMonth any
	if sched.DayOfWeek != nil {
		dayOfWeek = int(*sched.DayOfWeek)
	}
	if sched.DayOfMonth != nil {
		dayOfMonth = *sched.DayOfMonth
	}
	var marker any
	if sched.LastGenerated != nil {
		marker = sched.LastGenerated.String()
	}

	query := `
		INSERT INTO recurring_schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		sched.ID, sched.CustomerID, sched.Service, sched.Frequency,
		dayOfWeek, dayOfMonth, sched.Preferred,
		sched.Bedrooms, sched.Bathrooms, string(extrasJSON),
		sched.Address.Street, sched.Address.Suburb, sched.Address.City,
		nullableCleaner(sched.CleanerID), sched.Notes, sched.Active, marker,
		nullableInt64(sched.TotalAmountMinor), nullableInt64(sched.CleanerEarningsMinor),
		sched.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: insert schedule: %v", engine.ErrPersistence, err)
	}
	return nil
}

func (s *Store) MarkGenerated(ctx context.Context, id engine.ScheduleID, p engine.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Guarded write: the marker only moves forward. Period's YYYY-MM
	// encoding sorts lexicographically in chronological order.
	query := `
		UPDATE recurring_schedules
		SET last_generated_period = ?
		WHERE id = ?
		  AND (last_generated_period IS NULL OR last_generated_period < ?)
	`
	_, err := s.db.ExecContext(ctx, query, p.String(), id, p.String())
	if err != nil {
		return fmt.Errorf("%w: mark generated: %v", engine.ErrPersistence, err)
	}
	return nil
}

func scanSchedule(rows *sql.Rows) (*engine.RecurringSchedule, error) {
	var (
		sched         engine.RecurringSchedule
		dayOfWeek     sql.NullInt64
		dayOfMonth    sql.NullInt64
		preferred     sql.NullString
		extrasJSON    sql.NullString
		street        sql.NullString
		suburb        sql.NullString
		city          sql.NullString
		cleanerID     sql.NullString
		notes         sql.NullString
		marker        sql.NullString
		totalMinor    sql.NullInt64
		earningsMinor sql.NullInt64
		createdAt     string
	)

	err := rows.Scan(
		&sched.ID, &sched.CustomerID, &sched.Service, &sched.Frequency,
		&dayOfWeek, &dayOfMonth, &preferred, &sched.Bedrooms, &sched.Bathrooms,
		&extrasJSON, &street, &suburb, &city, &cleanerID, &notes,
		&sched.Active, &marker, &totalMinor, &earningsMinor, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan schedule: %v", engine.ErrPersistence, err)
	}

	if dayOfWeek.Valid {
		wd := time.Weekday(dayOfWeek.Int64)
		sched.DayOfWeek = &wd
	}
	if dayOfMonth.Valid {
		dom := int(dayOfMonth.Int64)
		sched.DayOfMonth = &dom
	}
	sched.Preferred = preferred.String
	sched.Address = engine.Address{Street: street.String, Suburb: suburb.String, City: city.String}
	if cleanerID.Valid && cleanerID.String != "" {
		cid := engine.CleanerID(cleanerID.String)
		sched.CleanerID = &cid
	}
	sched.Notes = notes.String
	if marker.Valid && marker.String != "" {
		p, err := engine.ParsePeriod(marker.String)
		if err == nil {
			sched.LastGenerated = &p
		}
	}
	if totalMinor.Valid {
		v := totalMinor.Int64
		sched.TotalAmountMinor = &v
	}
	if earningsMinor.Valid {
		v := earningsMinor.Int64
		sched.CleanerEarningsMinor = &v
	}
	if extrasJSON.Valid && extrasJSON.String != "" {
		json.Unmarshal([]byte(extrasJSON.String), &sched.Extras)
	}
	sched.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &sched, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

const bookingColumns = `id, reference, service_type, frequency, bedrooms, bathrooms, office_size,
	fitted_rooms, loose_carpets, furnished, extras_json, scheduled_date, scheduled_time,
	address_street, address_suburb, address_city, first_name, last_name, email, phone,
	cleaner_preference, cleaner_id, status, payment_status, payment_reference,
	base_price, room_price, extras_price, furniture_fee, subtotal, frequency_discount,
	discount_code_discount, service_fee, tip, total_amount, cleaner_earnings,
	cleaner_earnings_pct, is_recurring, recurring_group_id, recurring_sequence,
	special_instructions, created_at`

func (s *Store) CreateBooking(ctx context.Context, b *engine.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertBooking(ctx, b)
}

func (s *Store) CreateBookingIfAbsent(ctx context.Context, b *engine.Booking) (*engine.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBooking(ctx, b)
	if err == nil {
		copied := *b
		return &copied, nil
	}
	if !engine.IsDuplicate(err) {
		return nil, err
	}

	// Another delivery won the insert. Return the existing booking so the
	// caller can report already-processed with its reference.
	existing, lookupErr := s.getBookingWhere(ctx, "payment_reference = ?", b.PaymentReference)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return existing, engine.ErrDuplicateApplication
}

func (s *Store) insertBooking(ctx context.Context, b *engine.Booking) error {
	if b.ID == "" {
		b.ID = engine.NewBookingID()
	}
	if b.Reference == "" {
		b.Reference = engine.NewBookingReference()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	extrasJSON, _ := json.Marshal(b.Extras)

	var bedrooms, bathrooms, fittedRooms, looseCarpets int
	var officeSize string
	var furnished bool
	switch d := b.Detail.(type) {
	case engine.RoomDetail:
		bedrooms, bathrooms = d.Bedrooms, d.Bathrooms
	case engine.OfficeDetail:
		officeSize, bathrooms = string(d.Size), d.Bathrooms
	case engine.CarpetDetail:
		fittedRooms, looseCarpets, furnished = d.FittedRooms, d.LooseCarpets, d.Furnished
	}

	var sequence any
	if b.RecurringSequence != nil {
		sequence = *b.RecurringSequence
	}

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.Reference, b.Service, b.Frequency, bedrooms, bathrooms,
		nullString(officeSize), fittedRooms, looseCarpets, furnished,
		string(extrasJSON), b.ScheduledDate.String(), b.ScheduledTime,
		b.Address.Street, b.Address.Suburb, b.Address.City,
		b.FirstName, b.LastName, b.Email, b.Phone,
		b.CleanerPreference, nullableCleaner(b.CleanerID),
		b.Status, b.PaymentStatus, nullString(b.PaymentReference),
		b.Price.BasePrice.String(), b.Price.RoomPrice.String(), b.Price.ExtrasPrice.String(),
		b.Price.FurnitureFee.String(), b.Price.Subtotal.String(), b.Price.FrequencyDiscount.String(),
		b.Price.DiscountCodeDiscount.String(), b.Price.ServiceFee.String(), b.Price.Tip.String(),
		b.Price.Total.String(),
		nullableDecimal(b.CleanerEarnings), nullableDecimal(b.CleanerEarningsPct),
		b.IsRecurring, nullString(b.RecurringGroupID), sequence,
		b.SpecialInstructions, b.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("booking %s: %w", b.Reference, engine.ErrDuplicateApplication)
		}
		return fmt.Errorf("%w: insert booking: %v", engine.ErrPersistence, err)
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id engine.BookingID) (*engine.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBookingWhere(ctx, "id = ?", id)
}

func (s *Store) GetBookingByReference(ctx context.Context, reference string) (*engine.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBookingWhere(ctx, "reference = ?", reference)
}

func (s *Store) GetBookingByPaymentReference(ctx context.Context, paymentRef string) (*engine.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBookingWhere(ctx, "payment_reference = ?", paymentRef)
}

func (s *Store) getBookingWhere(ctx context.Context, where string, args ...any) (*engine.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE " + where + " LIMIT 1"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query booking: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("booking (%s): %w", where, engine.ErrNotFound)
	}
	return scanBooking(rows)
}

func (s *Store) LatestRecurringBooking(ctx context.Context, q engine.LatestRecurringQuery) (*engine.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + bookingColumns + ` FROM bookings
		WHERE email = ? COLLATE NOCASE AND address_street = ? AND frequency = ? AND is_recurring = TRUE
		ORDER BY created_at DESC LIMIT 1`
	rows, err := s.db.QueryContext(ctx, query, q.Email, q.Street, q.Frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: query latest recurring: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, engine.ErrNotFound
	}
	return scanBooking(rows)
}

func (s *Store) RecurringGroupTemplates(ctx context.Context) ([]*engine.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// First booking per group: lowest sequence wins; rows without a
	// sequence sort last.
	query := "SELECT " + bookingColumns + ` FROM bookings
		WHERE is_recurring = TRUE AND recurring_group_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM bookings prior
			WHERE prior.recurring_group_id = bookings.recurring_group_id
			  AND COALESCE(prior.recurring_sequence, 999999) < COALESCE(bookings.recurring_sequence, 999999)
		  )
		GROUP BY recurring_group_id
		ORDER BY recurring_group_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query group templates: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	var bookings []*engine.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *Store) UpdatePayment(ctx context.Context, id engine.BookingID, status engine.PaymentStatus, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookingStatus := ""
	if status == engine.PaymentCompleted {
		bookingStatus = string(engine.BookingConfirmed)
	}

	query := `
		UPDATE bookings
		SET payment_status = ?,
		    payment_reference = COALESCE(NULLIF(?, ''), payment_reference),
		    status = COALESCE(NULLIF(?, ''), status)
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, status, paymentRef, bookingStatus, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("payment reference %s: %w", paymentRef, engine.ErrDuplicateApplication)
		}
		return fmt.Errorf("%w: update payment: %v", engine.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s: %w", id, engine.ErrNotFound)
	}
	return nil
}

func scanBooking(rows *sql.Rows) (*engine.Booking, error) {
	var (
		b            engine.Booking
		bedrooms     int
		bathrooms    int
		officeSize   sql.NullString
		fittedRooms  int
		looseCarpets int
		furnished    bool
		extrasJSON   sql.NullString
		scheduled    string
		schedTime    sql.NullString
		street       sql.NullString
		suburb       sql.NullString
		city         sql.NullString
		firstName    sql.NullString
		lastName     sql.NullString
		email        sql.NullString
		phone        sql.NullString
		cleanerPref  sql.NullString
		cleanerID    sql.NullString
		paymentRef   sql.NullString
		prices       [10]sql.NullString
		earnings     sql.NullString
		earningsPct  sql.NullString
		groupID      sql.NullString
		sequence     sql.NullInt64
		special      sql.NullString
		createdAt    string
	)

	err := rows.Scan(
		&b.ID, &b.Reference, &b.Service, &b.Frequency, &bedrooms, &bathrooms,
		&officeSize, &fittedRooms, &looseCarpets, &furnished, &extrasJSON,
		&scheduled, &schedTime, &street, &suburb, &city,
		&firstName, &lastName, &email, &phone, &cleanerPref, &cleanerID,
		&b.Status, &b.PaymentStatus, &paymentRef,
		&prices[0], &prices[1], &prices[2], &prices[3], &prices[4],
		&prices[5], &prices[6], &prices[7], &prices[8], &prices[9],
		&earnings, &earningsPct, &b.IsRecurring, &groupID, &sequence,
		&special, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan booking: %v", engine.ErrPersistence, err)
	}

	switch {
	case b.Service == engine.ServiceCarpet:
		b.Detail = engine.CarpetDetail{FittedRooms: fittedRooms, LooseCarpets: looseCarpets, Furnished: furnished}
	case officeSize.Valid && officeSize.String != "":
		b.Detail = engine.OfficeDetail{Size: engine.OfficeSize(officeSize.String), Bathrooms: bathrooms}
	default:
		b.Detail = engine.RoomDetail{Bedrooms: bedrooms, Bathrooms: bathrooms}
	}

	if extrasJSON.Valid && extrasJSON.String != "" {
		json.Unmarshal([]byte(extrasJSON.String), &b.Extras)
	}
	b.ScheduledDate, _ = engine.ParseDate(scheduled)
	b.ScheduledTime = schedTime.String
	b.Address = engine.Address{Street: street.String, Suburb: suburb.String, City: city.String}
	b.FirstName = firstName.String
	b.LastName = lastName.String
	b.Email = email.String
	b.Phone = phone.String
	b.CleanerPreference = cleanerPref.String
	if cleanerID.Valid && cleanerID.String != "" {
		cid := engine.CleanerID(cleanerID.String)
		b.CleanerID = &cid
	}
	b.PaymentReference = paymentRef.String

	b.Price = engine.PriceBreakdown{
		BasePrice:            parseDecimal(prices[0]),
		RoomPrice:            parseDecimal(prices[1]),
		ExtrasPrice:          parseDecimal(prices[2]),
		FurnitureFee:         parseDecimal(prices[3]),
		Subtotal:             parseDecimal(prices[4]),
		FrequencyDiscount:    parseDecimal(prices[5]),
		DiscountCodeDiscount: parseDecimal(prices[6]),
		ServiceFee:           parseDecimal(prices[7]),
		Tip:                  parseDecimal(prices[8]),
		Total:                parseDecimal(prices[9]),
	}
	if earnings.Valid && earnings.String != "" {
		v := parseDecimal(earnings)
		b.CleanerEarnings = &v
	}
	if earningsPct.Valid && earningsPct.String != "" {
		v := parseDecimal(earningsPct)
		b.CleanerEarningsPct = &v
	}
	b.RecurringGroupID = groupID.String
	if sequence.Valid {
		seq := int(sequence.Int64)
		b.RecurringSequence = &seq
	}
	b.SpecialInstructions = special.String
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &b, nil
}

// =============================================================================
// CUSTOMERS / CLEANERS
// =============================================================================

func (s *Store) GetCustomer(ctx context.Context, id engine.CustomerID) (*engine.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCustomerWhere(ctx, "id = ?", id)
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*engine.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCustomerWhere(ctx, "email = ? COLLATE NOCASE", email)
}

func (s *Store) getCustomerWhere(ctx context.Context, where string, args ...any) (*engine.Customer, error) {
	var c engine.Customer
	var phone sql.NullString
	var createdAt string

	query := "SELECT id, first_name, last_name, email, phone, created_at FROM customers WHERE " + where
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &phone, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer: %w", engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query customer: %v", engine.ErrPersistence, err)
	}

	c.Phone = phone.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c *engine.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = engine.CustomerID("cust-" + engine.NewRecurringGroupID())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO customers (id, first_name, last_name, email, phone, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: insert customer: %v", engine.ErrPersistence, err)
	}
	return nil
}

func (s *Store) GetCleaner(ctx context.Context, id engine.CleanerID) (*engine.Cleaner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c engine.Cleaner
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, total_jobs FROM cleaners WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.TotalJobs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cleaner %s: %w", id, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query cleaner: %v", engine.ErrPersistence, err)
	}
	return &c, nil
}

// SaveCleaner upserts a cleaner record.
func (s *Store) SaveCleaner(ctx context.Context, c *engine.Cleaner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cleaners (id, name, total_jobs) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, total_jobs = excluded.total_jobs
	`, c.ID, c.Name, c.TotalJobs)
	if err != nil {
		return fmt.Errorf("%w: save cleaner: %v", engine.ErrPersistence, err)
	}
	return nil
}

// =============================================================================
// PAYMENT INTENTS
// =============================================================================

func (s *Store) CreatePendingPurchase(ctx context.Context, p *engine.PendingPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_purchases (payment_reference, customer_id, voucher_amount, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.PaymentReference, p.CustomerID, p.VoucherAmount.String(), engine.PurchasePending,
		p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("purchase %s: %w", p.PaymentReference, engine.ErrDuplicateApplication)
		}
		return fmt.Errorf("%w: insert purchase: %v", engine.ErrPersistence, err)
	}
	return nil
}

func (s *Store) CompletePendingPurchase(ctx context.Context, paymentRef string) (*engine.PendingPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Conditional UPDATE on status: exactly one delivery transitions the
	// purchase even under concurrent duplicates.
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_purchases
		SET status = ?, completed_at = ?
		WHERE payment_reference = ? AND status = ?
	`, engine.PurchaseCompleted, now.Format(time.RFC3339), paymentRef, engine.PurchasePending)
	if err != nil {
		return nil, fmt.Errorf("%w: complete purchase: %v", engine.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("pending purchase %s: %w", paymentRef, engine.ErrNotFound)
	}

	var p engine.PendingPurchase
	var amount, createdAt string
	var completedAt sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT payment_reference, customer_id, voucher_amount, status, created_at, completed_at
		FROM pending_purchases WHERE payment_reference = ?
	`, paymentRef).Scan(&p.PaymentReference, &p.CustomerID, &amount, &p.Status, &createdAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: reload purchase: %v", engine.ErrPersistence, err)
	}

	p.VoucherAmount, _ = decimal.NewFromString(amount)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		p.CompletedAt = &t
	}
	return &p, nil
}

func (s *Store) CreditOnce(ctx context.Context, tx *engine.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = "ctx-" + engine.NewRecurringGroupID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, customer_id, amount, tx_type, payment_reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.CustomerID, tx.Amount.String(), tx.Type, tx.PaymentReference,
		tx.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("credit %s: %w", tx.PaymentReference, engine.ErrDuplicateApplication)
		}
		return fmt.Errorf("%w: insert credit: %v", engine.ErrPersistence, err)
	}
	return nil
}

func (s *Store) CreditBalance(ctx context.Context, id engine.CustomerID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT amount, tx_type FROM credit_transactions WHERE customer_id = ?", id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: query credits: %v", engine.ErrPersistence, err)
	}
	defer rows.Close()

	balance := decimal.Zero
	for rows.Next() {
		var amount, txType string
		if err := rows.Scan(&amount, &txType); err != nil {
			return decimal.Zero, fmt.Errorf("%w: scan credit: %v", engine.ErrPersistence, err)
		}
		v, _ := decimal.NewFromString(amount)
		switch engine.CreditTransactionType(txType) {
		case engine.CreditPurchase:
			balance = balance.Add(v)
		case engine.CreditUsage:
			balance = balance.Sub(v)
		}
	}
	return balance, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

const (
	settingPricing  = "pricing_config"
	settingEarnings = "earnings_config"
)

func (s *Store) PricingConfig(ctx context.Context) (engine.PricingConfig, error) {
	var cfg engine.PricingConfig
	ok, err := s.loadSetting(ctx, settingPricing, &cfg)
	if err != nil || !ok {
		return engine.DefaultPricingConfig(), err
	}
	return cfg, nil
}

func (s *Store) EarningsConfig(ctx context.Context) (engine.EarningsConfig, error) {
	var cfg engine.EarningsConfig
	ok, err := s.loadSetting(ctx, settingEarnings, &cfg)
	if err != nil || !ok {
		return engine.DefaultEarningsConfig(), err
	}
	return cfg, nil
}

// SavePricingConfig stores the pricing configuration snapshot.
func (s *Store) SavePricingConfig(ctx context.Context, cfg engine.PricingConfig) error {
	return s.saveSetting(ctx, settingPricing, cfg)
}

// SaveEarningsConfig stores the earnings configuration snapshot.
func (s *Store) SaveEarningsConfig(ctx context.Context, cfg engine.EarningsConfig) error {
	return s.saveSetting(ctx, settingEarnings, cfg)
}

func (s *Store) loadSetting(ctx context.Context, key string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var valueJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT value_json FROM settings WHERE key = ?", key).Scan(&valueJSON)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: query setting %s: %v", engine.ErrPersistence, key, err)
	}
	if err := json.Unmarshal([]byte(valueJSON), out); err != nil {
		return false, fmt.Errorf("%w: setting %s is malformed: %v", engine.ErrConfiguration, key, err)
	}
	return true, nil
}

func (s *Store) saveSetting(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode setting %s: %v", engine.ErrConfiguration, key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, key, string(valueJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("%w: save setting %s: %v", engine.ErrPersistence, key, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableCleaner(id *engine.CleanerID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDecimal(s sql.NullString) decimal.Decimal {
	if !s.Valid || s.String == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
