package construct

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/resilience"
)

// DomainRanks supplies the rank bias applied to every document of a domain.
// Lower ranks sort first in posting lists.
type DomainRanks interface {
	Ranks(ctx context.Context) (map[uint32]int, error)
}

// StaticRanks is a fixed rank table.
type StaticRanks map[uint32]int

// Ranks returns the table itself.
func (s StaticRanks) Ranks(context.Context) (map[uint32]int, error) { return s, nil }

// PostgresRanks loads ranks from the domain_ranks table.
type PostgresRanks struct {
	db    *sql.DB
	retry resilience.RetryConfig
}

const selectDomainRanks = `SELECT domain_id, rank FROM domain_ranks`

// NewPostgresRanks returns a rank source backed by db.
func NewPostgresRanks(db *sql.DB) *PostgresRanks {
	return &PostgresRanks{db: db, retry: resilience.RetryConfig{MaxAttempts: 3}}
}

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// Ranks reads the full table, retrying transient failures. A missing
// table is not retried.
func (p *PostgresRanks) Ranks(ctx context.Context) (map[uint32]int, error) {
	var ranks map[uint32]int
	err := resilience.Retry(ctx, "load-domain-ranks", p.retry, func(ctx context.Context) error {
		loaded, err := p.load(ctx)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return resilience.Permanent(err)
		}
		if err != nil {
			return err
		}
		ranks = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ranks, nil
}

func (p *PostgresRanks) load(ctx context.Context) (map[uint32]int, error) {
	rows, err := p.db.QueryContext(ctx, selectDomainRanks)
	if err != nil {
		return nil, fmt.Errorf("querying domain ranks: %w", err)
	}
	defer rows.Close()
	ranks := make(map[uint32]int)
	for rows.Next() {
		var domain int64
		var rank int
		if err := rows.Scan(&domain, &rank); err != nil {
			return nil, fmt.Errorf("scanning domain rank: %w", err)
		}
		if domain < 0 || domain > ids.MaxDomainID {
			continue
		}
		ranks[uint32(domain)] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating domain ranks: %w", err)
	}
	return ranks, nil
}
