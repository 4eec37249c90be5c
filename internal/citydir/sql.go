package citydir

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

const mappingQuery = `SELECT school_name, city FROM city WHERE school_name IS NOT NULL AND city IS NOT NULL`

type cityRow struct {
	School string `db:"school_name"`
	City   string `db:"city"`
}

// SQL reads the mapping from the city lookup table.
type SQL struct {
	db *sqlx.DB
}

// NewSQL wraps an open database handle.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

// OpenSQL opens the lookup table with the given driver (postgres by default).
func OpenSQL(driver, dsn string) (*SQL, error) {
	if driver == "" {
		driver = "postgres"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "citydir: open")
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewSQL(db), nil
}

// Close releases the database handle.
func (d *SQL) Close() error { return d.db.Close() }

func (d *SQL) Mapping(ctx context.Context) (Mapping, error) {
	var rows []cityRow
	if err := d.db.SelectContext(ctx, &rows, mappingQuery); err != nil {
		return nil, mcperr.Unavailable("city directory", errors.Wrap(err, "select city mapping"))
	}
	m := make(Mapping, len(rows))
	for _, r := range rows {
		school, city := strings.TrimSpace(r.School), strings.TrimSpace(r.City)
		if school == "" || city == "" {
			continue
		}
		m[school] = city
	}
	return m, nil
}
