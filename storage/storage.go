package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/models"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound is returned by writes that target a missing row.
	ErrNotFound = errors.New("record not found")
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(DialectSQLite), "sqlite3":
		return DialectSQLite, nil
	case string(DialectPostgres), "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", raw)
	}
}

// SubscriptionUpdate carries the billing fields the payment webhook mirrors
// onto a profile. Empty strings leave the stored value unchanged.
type SubscriptionUpdate struct {
	Plan           string
	CustomerID     string
	SubscriptionID string
	Status         string
}

// Storage is the persistence used by the HTTP handlers and the CLI.
// Single-row reads return (nil, nil) when nothing matches.
type Storage interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
	ListProfiles(ctx context.Context, offset, limit int) ([]models.Profile, error)
	ListProProfiles(ctx context.Context, offset, limit int) ([]models.Profile, error)
	CountProfiles(ctx context.Context) (int, error)
	CountProProfiles(ctx context.Context) (int, error)
	UpdateSubscriptionByUser(ctx context.Context, userID string, update SubscriptionUpdate) error
	UpdateSubscriptionByCustomer(ctx context.Context, customerID string, update SubscriptionUpdate) (int64, error)

	FindLicenseByKey(ctx context.Context, key string) (*models.License, error)
	FindLicenseByUser(ctx context.Context, userID string) (*models.License, error)
	EnsureLicense(ctx context.Context, userID, key string) (*models.License, bool, error)
	SetLicenseStatus(ctx context.Context, key, status string) error

	UpsertLicenseSite(ctx context.Context, licenseID, siteURL, siteName string, at time.Time) error
	ListLicenseSites(ctx context.Context, licenseID string) ([]models.LicenseSite, error)
	ListSites(ctx context.Context, offset, limit int) ([]models.SiteOverview, error)
	CountSites(ctx context.Context) (int, error)

	ListVersions(ctx context.Context) ([]models.PluginVersion, error)
	ListVersionsByChannel(ctx context.Context, channel string) ([]models.PluginVersion, error)
	GetVersion(ctx context.Context, id string) (*models.PluginVersion, error)
	GetVersionByVersion(ctx context.Context, version string) (*models.PluginVersion, error)
	CreateVersion(ctx context.Context, v *models.PluginVersion) error
	UpdateVersion(ctx context.Context, v *models.PluginVersion) error
	DeleteVersion(ctx context.Context, id string) error
	CountVersions(ctx context.Context) (int, error)

	ListTickets(ctx context.Context, status string) ([]models.SupportTicket, error)
	ListTicketsByUser(ctx context.Context, userID string) ([]models.SupportTicket, error)
	GetTicket(ctx context.Context, id string) (*models.SupportTicket, error)
	ListTicketMessages(ctx context.Context, ticketID string) ([]models.TicketMessage, error)
	CreateTicket(ctx context.Context, ticket *models.SupportTicket, firstMessage *models.TicketMessage) error
	AddTicketMessage(ctx context.Context, msg *models.TicketMessage, setStatus, onlyFromStatus string) error
	SetTicketStatus(ctx context.Context, id, status string) error

	IsAdmin(ctx context.Context, userID string) (bool, error)
	GrantAdmin(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close() error
}

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	dsn     string
	now     func() time.Time
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	store, err := Connect(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(MigrateUp, 0); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Connect opens the database without migrating it.
func Connect(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	store := &SQLStore{dialect: dialect, dsn: dsn, now: time.Now}
	db, err := store.openPool()
	if err != nil {
		return nil, err
	}
	store.db = db

	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) openPool() (*sql.DB, error) {
	if s.dialect == DialectPostgres {
		db, err := sql.Open("pgx", s.dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		return db, nil
	}

	db, err := sql.Open("sqlite3", sqliteDSN(s.dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	return db, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.bind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.bind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.bind(query), args...)
}

func (s *SQLStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.queryRow(ctx, s.db, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	return rebindQuestionToDollar(query)
}

// rebindQuestionToDollar rewrites ? placeholders to $1..$n, leaving quoted
// literals alone.
func rebindQuestionToDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var (
		out     strings.Builder
		param   int
		inQuote bool
	)
	out.Grow(len(query) + 16)

	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			out.WriteByte(ch)
		case ch == '?' && !inQuote:
			param++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(param))
		default:
			out.WriteByte(ch)
		}
	}
	return out.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.Warn("Failed to close rows", map[string]interface{}{"error": err.Error()})
	}
}
