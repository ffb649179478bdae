package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/georetry/internal/core/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultTable is the table created by the bundled migrations.
const DefaultTable = "collections"

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Driver   string `yaml:"driver"`
	Table    string `yaml:"table"`
	Migrate  bool   `yaml:"migrate"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// OpenDB opens and pings the catalog database. Driver is "pgx" (default) or
// "postgres" for lib/pq.
func OpenDB(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}
	db, err := sqlx.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the bundled schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

type collectionRow struct {
	Link       string    `db:"link"`
	ResourceID string    `db:"resource_id"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// PostgresSource reads collection identities from a table.
type PostgresSource struct {
	db          *sqlx.DB
	lookupQuery string
	upsertQuery string
	deleteQuery string
}

func NewPostgresSource(db *sqlx.DB, table string) *PostgresSource {
	if table == "" {
		table = DefaultTable
	}
	t := pq.QuoteIdentifier(table)
	return &PostgresSource{
		db:          db,
		lookupQuery: fmt.Sprintf("SELECT link, resource_id, updated_at FROM %s WHERE link = $1", t),
		upsertQuery: fmt.Sprintf(
			"INSERT INTO %s (link, resource_id, updated_at) VALUES ($1, $2, NOW()) "+
				"ON CONFLICT (link) DO UPDATE SET resource_id = EXCLUDED.resource_id, updated_at = NOW()", t),
		deleteQuery: fmt.Sprintf("DELETE FROM %s WHERE link = $1", t),
	}
}

func (s *PostgresSource) Lookup(ctx context.Context, link string) (domain.Container, error) {
	var row collectionRow
	if err := s.db.GetContext(ctx, &row, s.lookupQuery, link); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Container{}, ErrCollectionNotFound
		}
		return domain.Container{}, fmt.Errorf("query collection: %w", err)
	}
	return domain.Container{Link: row.Link, ResourceID: domain.ContainerIdentity(row.ResourceID)}, nil
}

// Upsert records the identity of link, replacing any previous incarnation.
func (s *PostgresSource) Upsert(ctx context.Context, link string, rid domain.ContainerIdentity) error {
	if _, err := s.db.ExecContext(ctx, s.upsertQuery, link, string(rid)); err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}
	return nil
}

func (s *PostgresSource) Delete(ctx context.Context, link string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQuery, link); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// Health pings the database.
func (s *PostgresSource) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
