package alert

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines alert data operations. All per-user operations are
// scoped by user ID so one subscriber can never touch another's alerts.
type Repository interface {
	// Create stores a new alert and fills in its ID and timestamps.
	Create(ctx context.Context, a *Alert) error

	// GetByID retrieves an alert owned by the given user.
	// Returns ErrAlertNotFound for a missing or foreign alert.
	GetByID(ctx context.Context, userID, alertID string) (*Alert, error)

	// ListByUser returns all alerts for a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Alert, error)

	// ListActive returns every active alert across all users, for polling.
	ListActive(ctx context.Context) ([]*Alert, error)

	// SetActive toggles an alert owned by the given user.
	SetActive(ctx context.Context, userID, alertID string, active bool) (*Alert, error)

	// Delete removes an alert owned by the given user.
	Delete(ctx context.Context, userID, alertID string) error
}

// DeliveryRepository is the ledger of reports already seen per alert.
type DeliveryRepository interface {
	// Record inserts a delivery row for a report the poller matched.
	// Reports the insert as skipped when the report ID was already recorded.
	Record(ctx context.Context, d *Delivery) (inserted bool, err error)

	// Seen reports whether a report ID is already in the ledger.
	Seen(ctx context.Context, reportID string) (bool, error)

	// MarkSMSSent flags a delivery after its notification went out.
	MarkSMSSent(ctx context.Context, reportID string) error

	// ListByAlert returns the delivery history for one alert, newest first.
	ListByAlert(ctx context.Context, alertID string) ([]*Delivery, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*Alert // alert ID -> Alert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{alerts: make(map[string]*Alert)}
}

// Create stores a new alert and fills in its ID and timestamps.
func (r *InMemoryRepository) Create(ctx context.Context, a *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	alertCopy := *a
	r.alerts[a.ID] = &alertCopy
	return nil
}

// GetByID retrieves an alert owned by the given user.
func (r *InMemoryRepository) GetByID(ctx context.Context, userID, alertID string) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[alertID]
	if !ok || a.UserID != userID {
		return nil, ErrAlertNotFound
	}
	alertCopy := *a
	return &alertCopy, nil
}

// ListByUser returns all alerts for a user, newest first.
func (r *InMemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.alerts {
		if a.UserID == userID {
			alertCopy := *a
			out = append(out, &alertCopy)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

// ListActive returns every active alert across all users.
func (r *InMemoryRepository) ListActive(ctx context.Context) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.alerts {
		if a.Active {
			alertCopy := *a
			out = append(out, &alertCopy)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

// SetActive toggles an alert owned by the given user.
func (r *InMemoryRepository) SetActive(ctx context.Context, userID, alertID string, active bool) (*Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok || a.UserID != userID {
		return nil, ErrAlertNotFound
	}
	a.Active = active
	a.UpdatedAt = time.Now()
	alertCopy := *a
	return &alertCopy, nil
}

// Delete removes an alert owned by the given user.
func (r *InMemoryRepository) Delete(ctx context.Context, userID, alertID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok || a.UserID != userID {
		return ErrAlertNotFound
	}
	delete(r.alerts, alertID)
	return nil
}

func sortByCreatedDesc(alerts []*Alert) {
	for i := 1; i < len(alerts); i++ {
		for j := i; j > 0 && alerts[j].CreatedAt.After(alerts[j-1].CreatedAt); j-- {
			alerts[j], alerts[j-1] = alerts[j-1], alerts[j]
		}
	}
}

// InMemoryDeliveryRepository is an in-memory implementation of
// DeliveryRepository. Thread-safe via RWMutex.
type InMemoryDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*Delivery // report ID -> Delivery
}

// NewInMemoryDeliveryRepository creates a new in-memory delivery ledger.
func NewInMemoryDeliveryRepository() *InMemoryDeliveryRepository {
	return &InMemoryDeliveryRepository{deliveries: make(map[string]*Delivery)}
}

// Record inserts a delivery row, skipping report IDs already recorded.
func (r *InMemoryDeliveryRepository) Record(ctx context.Context, d *Delivery) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.deliveries[d.ReportID]; exists {
		return false, nil
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now()
	deliveryCopy := *d
	r.deliveries[d.ReportID] = &deliveryCopy
	return true, nil
}

// Seen reports whether a report ID is already in the ledger.
func (r *InMemoryDeliveryRepository) Seen(ctx context.Context, reportID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.deliveries[reportID]
	return ok, nil
}

// MarkSMSSent flags a delivery after its notification went out.
func (r *InMemoryDeliveryRepository) MarkSMSSent(ctx context.Context, reportID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.deliveries[reportID]
	if !ok {
		return fmt.Errorf("delivery for report %s not recorded", reportID)
	}
	d.SMSSent = true
	return nil
}

// ListByAlert returns the delivery history for one alert, newest first.
func (r *InMemoryDeliveryRepository) ListByAlert(ctx context.Context, alertID string) ([]*Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Delivery
	for _, d := range r.deliveries {
		if d.AlertID == alertID {
			deliveryCopy := *d
			out = append(out, &deliveryCopy)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const alertColumns = `id, user_id, address, latitude, longitude, report_type_id, report_type_name, active, created_at, updated_at`

func scanAlert(row interface{ Scan(...any) error }) (*Alert, error) {
	a := &Alert{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.Address, &a.Latitude, &a.Longitude,
		&a.ReportTypeID, &a.ReportTypeName, &a.Active,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create stores a new alert and fills in its ID and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	query := `
		INSERT INTO alerts (id, user_id, address, latitude, longitude, report_type_id, report_type_name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.Address, a.Latitude, a.Longitude,
		a.ReportTypeID, a.ReportTypeName, a.Active,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to insert alert",
			slog.String("error", err.Error()),
			slog.String("user_id", a.UserID))
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert owned by the given user.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, alertID string) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1 AND user_id = $2`
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	return a, nil
}

// ListByUser returns all alerts for a user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryAlerts(ctx, query, userID)
}

// ListActive returns every active alert across all users.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE active ORDER BY created_at DESC`
	return r.queryAlerts(ctx, query)
}

func (r *PostgresRepository) queryAlerts(ctx context.Context, query string, args ...any) ([]*Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return out, nil
}

// SetActive toggles an alert owned by the given user.
func (r *PostgresRepository) SetActive(ctx context.Context, userID, alertID string, active bool) (*Alert, error) {
	query := `
		UPDATE alerts SET active = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + alertColumns
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, userID, active))
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	return a, nil
}

// Delete removes an alert owned by the given user.
func (r *PostgresRepository) Delete(ctx context.Context, userID, alertID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1 AND user_id = $2`, alertID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// PostgresDeliveryRepository implements DeliveryRepository using PostgreSQL.
// The unique index on report_id makes Record race-free across poller runs.
type PostgresDeliveryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresDeliveryRepository creates a new PostgresDeliveryRepository.
func NewPostgresDeliveryRepository(db *sql.DB, logger *slog.Logger) *PostgresDeliveryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeliveryRepository{db: db, logger: logger}
}

// Record inserts a delivery row, skipping report IDs already recorded.
func (r *PostgresDeliveryRepository) Record(ctx context.Context, d *Delivery) (bool, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	query := `
		INSERT INTO deliveries (id, alert_id, report_id, report_data, sms_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (report_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, d.ID, d.AlertID, d.ReportID, []byte(d.ReportData), d.SMSSent)
	if err != nil {
		return false, fmt.Errorf("failed to record delivery: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// Seen reports whether a report ID is already in the ledger.
func (r *PostgresDeliveryRepository) Seen(ctx context.Context, reportID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM deliveries WHERE report_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, reportID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}
	return exists, nil
}

// MarkSMSSent flags a delivery after its notification went out.
func (r *PostgresDeliveryRepository) MarkSMSSent(ctx context.Context, reportID string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE deliveries SET sms_sent = true WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("failed to mark sms sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delivery for report %s not recorded", reportID)
	}
	return nil
}

// ListByAlert returns the delivery history for one alert, newest first.
func (r *PostgresDeliveryRepository) ListByAlert(ctx context.Context, alertID string) ([]*Delivery, error) {
	query := `
		SELECT id, alert_id, report_id, report_data, sms_sent, created_at
		FROM deliveries
		WHERE alert_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		r.logger.Error("failed to list deliveries", "alert_id", alertID, "error", err)
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		var d Delivery
		var data []byte
		if err := rows.Scan(&d.ID, &d.AlertID, &d.ReportID, &data, &d.SMSSent, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.ReportData = data
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deliveries: %w", err)
	}
	return out, nil
}
