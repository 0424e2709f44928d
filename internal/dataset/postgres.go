package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/resilience"
)

// Postgres reads records from a table with columns
// (seq, unique_id, group_name, search_key, payload). Rows are read in seq
// order, the order they were stored in, and cut into batches per group.
type Postgres struct {
	Config config.PostgresConfig
	Table  string
	Retry  resilience.RetryConfig
	// Client, when set, is used instead of connecting from Config.
	Client *postgres.Client
}

func (p *Postgres) connect(ctx context.Context) (*postgres.Client, func(), error) {
	if p.Client != nil {
		return p.Client, func() {}, nil
	}
	var c *postgres.Client
	err := resilience.Retry(ctx, "postgres connect", p.Retry, func() error {
		var err error
		c, err = postgres.New(ctx, p.Config)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

func (p *Postgres) Batches(ctx context.Context) ([]Batch, error) {
	c, release, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf(
		"SELECT unique_id, group_name, search_key, payload FROM %s ORDER BY seq",
		pq.QuoteIdentifier(p.Table),
	)
	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", p.Table, err)
	}
	defer rows.Close()

	var records []*block.Record
	for rows.Next() {
		var (
			rec     block.Record
			payload sql.NullString
		)
		if err := rows.Scan(&rec.UniqueID, &rec.Group, &rec.SearchKey, &payload); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", p.Table, err)
		}
		if payload.Valid {
			rec.Payload = json.RawMessage(payload.String)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", p.Table, err)
	}
	batches := splitByGroup(records)
	slog.Default().With("component", "dataset").Debug("postgres loaded", "table", p.Table, "summary", describe(batches))
	return batches, nil
}

// StorePostgres replaces the contents of table with batches, creating the
// table if needed. Rows are bulk-loaded with COPY in one transaction.
func StorePostgres(ctx context.Context, c *postgres.Client, table string, batches []Batch) error {
	ident := pq.QuoteIdentifier(table)
	return c.InTx(ctx, func(tx *sql.Tx) error {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq        BIGINT PRIMARY KEY,
			unique_id  TEXT NOT NULL,
			group_name TEXT NOT NULL,
			search_key TEXT NOT NULL,
			payload    JSONB
		)`, ident)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, "TRUNCATE "+ident); err != nil {
			return fmt.Errorf("truncating %s: %w", table, err)
		}
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, "seq", "unique_id", "group_name", "search_key", "payload"))
		if err != nil {
			return fmt.Errorf("preparing copy into %s: %w", table, err)
		}
		seq := 0
		for _, b := range batches {
			for _, r := range b.Records {
				var payload any
				if r.Payload != nil {
					raw, err := json.Marshal(r.Payload)
					if err != nil {
						_ = stmt.Close()
						return fmt.Errorf("encoding payload of %s: %w", r.UniqueID, err)
					}
					payload = string(raw)
				}
				seq++
				if _, err := stmt.ExecContext(ctx, seq, r.UniqueID, r.Group, r.SearchKey, payload); err != nil {
					_ = stmt.Close()
					return fmt.Errorf("copying %s: %w", r.UniqueID, err)
				}
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("flushing copy into %s: %w", table, err)
		}
		return stmt.Close()
	})
}
