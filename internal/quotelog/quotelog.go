// Package quotelog keeps a Postgres record of every quote set fetched from the
// rate provider. It is optional: without DATABASE_URL the service runs
// without it, and a failed write never fails an estimate.
package quotelog

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/shopspring/decimal"

    "shipestimate/internal/rate"
)

// ErrNotFound is returned by Get for an unknown quote id.
var ErrNotFound = errors.New("quote not found")

const schema = `
CREATE TABLE IF NOT EXISTS shipping_quotes (
    id          uuid PRIMARY KEY,
    provider    text        NOT NULL,
    zip         text        NOT NULL,
    weight_oz   numeric     NOT NULL,
    rate_count  integer     NOT NULL,
    cheapest    numeric(12,2),
    rates       jsonb       NOT NULL,
    created_at  timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS shipping_quotes_zip_created_idx ON shipping_quotes (zip, created_at DESC);
`

// Quote is one logged upstream fetch.
type Quote struct {
    ID        uuid.UUID            `json:"id"`
    Provider  string               `json:"provider"`
    Zip       string               `json:"zip"`
    WeightOz  float64              `json:"weightOz"`
    RateCount int                  `json:"rateCount"`
    Cheapest  *decimal.Decimal     `json:"cheapest,omitempty"`
    Rates     []rate.FormattedRate `json:"rates"`
    CreatedAt time.Time            `json:"createdAt"`
}

// NewQuote builds a Quote for rates fetched now.
func NewQuote(provider, zip string, weightOz float64, rates []rate.FormattedRate) Quote {
    q := Quote{
        ID:        uuid.New(),
        Provider:  provider,
        Zip:       zip,
        WeightOz:  weightOz,
        RateCount: len(rates),
        Rates:     rates,
        CreatedAt: time.Now().UTC(),
    }
    // rates arrive sorted, so the first is the cheapest
    if len(rates) > 0 {
        c := rates[0].Price
        q.Cheapest = &c
    }
    return q
}

type Store struct {
    db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{db: db} }

// EnsureSchema creates the table if missing. A concurrent replica creating it
// first surfaces as unique_violation, which is treated as success.
func (s *Store) EnsureSchema(ctx context.Context) error {
    _, err := s.db.Exec(ctx, schema)
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) && pgErr.Code == "23505" {
        return nil
    }
    return err
}

func (s *Store) Record(ctx context.Context, q Quote) error {
    ratesJSON, err := json.Marshal(q.Rates)
    if err != nil {
        return err
    }
    var cheapest *string
    if q.Cheapest != nil {
        v := q.Cheapest.StringFixed(2)
        cheapest = &v
    }
    _, err = s.db.Exec(ctx, `
        INSERT INTO shipping_quotes (id, provider, zip, weight_oz, rate_count, cheapest, rates, created_at)
        VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::jsonb, $8)
    `, q.ID, q.Provider, q.Zip, q.WeightOz, q.RateCount, cheapest, string(ratesJSON), q.CreatedAt)
    return err
}

const selectCols = `id, provider, zip, weight_oz::float8, rate_count, cheapest::text, rates, created_at`

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
    row := s.db.QueryRow(ctx, `SELECT `+selectCols+` FROM shipping_quotes WHERE id = $1`, id)
    q, err := scanQuote(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return Quote{}, ErrNotFound
    }
    return q, err
}

// Recent lists the newest quotes, optionally only for zip.
func (s *Store) Recent(ctx context.Context, zip string, limit int) ([]Quote, error) {
    if limit <= 0 || limit > 100 {
        limit = 20
    }
    rows, err := s.db.Query(ctx, `
        SELECT `+selectCols+`
        FROM shipping_quotes
        WHERE ($1 = '' OR zip = $1)
        ORDER BY created_at DESC
        LIMIT $2
    `, zip, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    out := make([]Quote, 0, limit)
    for rows.Next() {
        q, err := scanQuote(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, q)
    }
    return out, rows.Err()
}

func scanQuote(row pgx.Row) (Quote, error) {
    var (
        q        Quote
        cheapest *string
        ratesRaw []byte
    )
    if err := row.Scan(&q.ID, &q.Provider, &q.Zip, &q.WeightOz, &q.RateCount, &cheapest, &ratesRaw, &q.CreatedAt); err != nil {
        return Quote{}, err
    }
    if cheapest != nil {
        d, err := decimal.NewFromString(*cheapest)
        if err != nil {
            return Quote{}, err
        }
        q.Cheapest = &d
    }
    if err := json.Unmarshal(ratesRaw, &q.Rates); err != nil {
        return Quote{}, err
    }
    q.CreatedAt = q.CreatedAt.UTC()
    return q, nil
}
