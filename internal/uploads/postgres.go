package uploads

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var pgTables = map[Kind]string{
	KindPRD:       "prd_uploads",
	KindTestcases: "testcase_uploads",
}

// Migrate applies the embedded schema migrations to databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, _, _ := m.Version()
	logger.Info("[Uploads] Schema ready", "version", version)
	return nil
}

// PgBackend stores uploads in Postgres.
type PgBackend struct {
	conn *pgxpool.Pool
}

func NewPgBackend(conn *pgxpool.Pool) *PgBackend {
	return &PgBackend{conn: conn}
}

func (b *PgBackend) Put(ctx context.Context, kind Kind, rec *Record) error {
	sql := fmt.Sprintf(`INSERT INTO %s (id, name, content, created_at) VALUES ($1, $2, $3, $4)`, pgTables[kind])
	_, err := b.conn.Exec(ctx, sql,
		rec.ID,
		util.SanitizePostgresText(rec.Name),
		util.SanitizePostgresText(rec.Content),
		rec.CreatedAt,
	)
	return err
}

func (b *PgBackend) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	sql := fmt.Sprintf(`SELECT id, name, content, created_at FROM %s WHERE id = $1`, pgTables[kind])
	var rec Record
	err := b.conn.QueryRow(ctx, sql, id).Scan(&rec.ID, &rec.Name, &rec.Content, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *PgBackend) List(ctx context.Context, kind Kind) ([]Record, error) {
	sql := fmt.Sprintf(`SELECT id, name, created_at FROM %s ORDER BY created_at DESC`, pgTables[kind])
	rows, err := b.conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
