package address

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/db"
	"github.com/emsv/geovisor/internal/geospatial"
)

// Mapping is the source shape of the index: street name → house number →
// cadastral reference.
type Mapping map[string]map[string]string

// Entry is one row of the address index.
type Entry struct {
	StreetNorm string
	NumberNorm string
	Reference  string
}

var entryColumns = []string{"street_norm", "number_norm", "reference"}

// BuildEntries normalizes every street and number of m into index rows.
// Streets and numbers are visited in sorted order; when two variants
// normalize to the same key the later one wins and the collision is logged.
func BuildEntries(m Mapping) []Entry {
	log := zap.L().With(zap.String("component", "address.build"))

	streets := make([]string, 0, len(m))
	for s := range m {
		streets = append(streets, s)
	}
	sort.Strings(streets)

	pos := make(map[[2]string]int)
	var entries []Entry
	for _, street := range streets {
		nums := m[street]
		if len(nums) == 0 {
			continue
		}
		streetNorm := Normalize(street)

		numbers := make([]string, 0, len(nums))
		for n := range nums {
			numbers = append(numbers, n)
		}
		sort.Strings(numbers)

		for _, num := range numbers {
			e := Entry{StreetNorm: streetNorm, NumberNorm: Normalize(num), Reference: nums[num]}
			key := [2]string{e.StreetNorm, e.NumberNorm}
			if i, dup := pos[key]; dup {
				if entries[i].Reference != e.Reference {
					log.Warn("address key collision, keeping last",
						zap.String("street", e.StreetNorm),
						zap.String("number", e.NumberNorm),
						zap.String("dropped", entries[i].Reference),
						zap.String("kept", e.Reference),
					)
				}
				entries[i] = e
				continue
			}
			pos[key] = len(entries)
			entries = append(entries, e)
		}
	}
	return entries
}

// Index reads and rebuilds the address_index table.
type Index struct {
	pool  db.Pool
	table string
}

// NewIndex creates an Index over the given table.
func NewIndex(pool db.Pool, table string) *Index {
	return &Index{pool: pool, table: table}
}

// Replace swaps the whole index content for entries: the table is emptied
// and reloaded with COPY in one transaction. Nothing is merged.
func (ix *Index) Replace(ctx context.Context, entries []Entry) (int64, error) {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.StreetNorm, e.NumberNorm, e.Reference}
	}

	var n int64
	err := db.InTx(ctx, ix.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{ix.table}.Sanitize()); err != nil {
			return eris.Wrap(err, "address: clear index")
		}
		var err error
		n, err = db.CopyFrom(ctx, tx, ix.table, entryColumns, rows)
		return err
	})
	if err != nil {
		return 0, eris.Wrap(err, "address: replace index")
	}

	zap.L().Info("address index rebuilt", zap.String("table", ix.table), zap.Int64("rows", n))
	return n, nil
}

// Lookup returns the reference stored for the normalized street and number.
// When several rows share the key one of them is returned without any
// ordering guarantee.
func (ix *Index) Lookup(ctx context.Context, street, number string) (string, error) {
	streetNorm, numberNorm := Normalize(street), Normalize(number)

	sql := fmt.Sprintf(
		`SELECT reference FROM %s WHERE street_norm = $1 AND number_norm = $2 LIMIT 1`,
		pgx.Identifier{ix.table}.Sanitize(),
	)
	var ref string
	err := ix.pool.QueryRow(ctx, sql, streetNorm, numberNorm).Scan(&ref)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return "", geospatial.NotFoundf("address not found: %s %s", street, number)
		}
		return "", eris.Wrap(err, "address: lookup")
	}
	return ref, nil
}
