package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"registration-service/internal/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db  *sqlx.DB
	url string
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, url: databaseURL}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Migrate applies pending schema migrations from the given directory.
func (s *Store) Migrate(migrationsPath string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), s.url)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID
func (s *Store) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := s.db.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetActiveEvents retrieves all events open for registration
func (s *Store) GetActiveEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM events WHERE active = TRUE ORDER BY start_date")
	return events, err
}

// GetPricingConfigByEventID retrieves the pricing config for an event with
// its surcharge tiers in stored order.
func (s *Store) GetPricingConfigByEventID(ctx context.Context, eventID int64) (*models.PricingConfig, error) {
	var cfg models.PricingConfig
	err := s.db.GetContext(ctx, &cfg,
		"SELECT * FROM pricing_configs WHERE event_id = $1", eventID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pricing config for event %d: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &cfg.SurchargeTiers,
		"SELECT * FROM surcharge_tiers WHERE pricing_config_id = $1 ORDER BY position", cfg.ID)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
