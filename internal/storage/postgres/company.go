package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stock_sentiment/internal/domain"
)

type CompanyStore struct {
	db *sqlx.DB
}

func NewCompanyStore(db *sqlx.DB) *CompanyStore {
	return &CompanyStore{db: db}
}

func (s *CompanyStore) List(ctx context.Context) ([]domain.Company, error) {
	query := `SELECT id, ticker, name, industry, keywords FROM companies ORDER BY ticker`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []domain.Company
	for rows.Next() {
		var c domain.Company
		var keywords pq.StringArray
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Name, &c.Industry, &keywords); err != nil {
			return nil, err
		}
		c.Keywords = []string(keywords)
		companies = append(companies, c)
	}

	return companies, rows.Err()
}

// UpsertBatch syncs the configured roster into the companies table. Tickers
// are the natural key; existing rows keep their id so stored posts stay
// linked.
func (s *CompanyStore) UpsertBatch(ctx context.Context, companies []domain.Company) error {
	if len(companies) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO companies (id, ticker, name, industry, keywords) VALUES ")
	valueArgs := make([]interface{}, 0, len(companies)*5)

	for i, c := range companies {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($")
		sb.WriteString(itoa(i*5 + 1))
		sb.WriteString(", $")
		sb.WriteString(itoa(i*5 + 2))
		sb.WriteString(", $")
		sb.WriteString(itoa(i*5 + 3))
		sb.WriteString(", $")
		sb.WriteString(itoa(i*5 + 4))
		sb.WriteString(", $")
		sb.WriteString(itoa(i*5 + 5))
		sb.WriteString(")")

		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		valueArgs = append(valueArgs, id, c.Ticker, c.Name, c.Industry, pq.StringArray(c.Keywords))
	}
	sb.WriteString(` ON CONFLICT (ticker) DO UPDATE SET
		name = EXCLUDED.name,
		industry = EXCLUDED.industry,
		keywords = EXCLUDED.keywords`)

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
