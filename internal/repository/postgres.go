package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-assistant/internal/domain"
)

// PostgresStore serves the catalog and the summaries table from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id SERIAL PRIMARY KEY,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			rating SMALLINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_product_created ON reviews (product_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS summaries (
			product_id INTEGER PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, price FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var items []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return items, nil
}

// storableID reports whether id fits the INTEGER key columns. Anything
// outside that range cannot name a stored row.
func storableID(id int) bool {
	return id > 0 && id <= math.MaxInt32
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID int) (domain.Product, bool, error) {
	if !storableID(productID) {
		return domain.Product{}, false, nil
	}
	var p domain.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, price FROM products WHERE id=$1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("get product: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) ListReviews(ctx context.Context, productID, limit int) ([]domain.Review, error) {
	if !storableID(productID) {
		return nil, nil
	}
	query := `SELECT id, product_id, author, content, rating, created_at
		 FROM reviews WHERE product_id=$1 ORDER BY created_at DESC, id DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var items []domain.Review
	for rows.Next() {
		var r domain.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Author, &r.Content, &r.Rating, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, productID int) (domain.SummaryEntry, bool, error) {
	if !storableID(productID) {
		return domain.SummaryEntry{}, false, nil
	}
	e := domain.SummaryEntry{ProductID: productID}
	err := s.pool.QueryRow(ctx,
		`SELECT content, generated_at, expires_at FROM summaries WHERE product_id=$1`,
		productID,
	).Scan(&e.Content, &e.GeneratedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SummaryEntry{}, false, nil
	}
	if err != nil {
		return domain.SummaryEntry{}, false, fmt.Errorf("get summary: %w", err)
	}
	return e, true, nil
}

func (s *PostgresStore) UpsertSummary(ctx context.Context, entry domain.SummaryEntry) error {
	if !storableID(entry.ProductID) {
		return fmt.Errorf("upsert summary: product id %d out of range", entry.ProductID)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO summaries (product_id, content, generated_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (product_id) DO UPDATE
		 SET content = EXCLUDED.content,
		     generated_at = EXCLUDED.generated_at,
		     expires_at = EXCLUDED.expires_at`,
		entry.ProductID,
		entry.Content,
		entry.GeneratedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
