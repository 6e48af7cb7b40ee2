// Package catalog reads the product catalog and customer profiles. The engine
// treats both as read-only lookup tables.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/oops"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"shopassist/app/config"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

var ErrNotFound = errors.New("not found")

var _ do.Shutdownable = (*Client)(nil)

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Brand       string  `json:"brand"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	InStock     bool    `json:"in_stock"`
}

type CustomerProfile struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	PreferredCategories []string `json:"preferred_categories"`
	PreferredBrands     []string `json:"preferred_brands"`
	BudgetMin           float64  `json:"budget_min"`
	BudgetMax           float64  `json:"budget_max"`
}

type Client struct {
	db     *sql.DB
	driver string
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return Open(cfg.Catalog.Driver, cfg.Catalog.DSN)
}

// Open connects to the catalog database and creates the tables if missing.
func Open(driver, dsn string) (*Client, error) {
	errb := oops.In("catalog").With("driver", driver)

	switch driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errb.Wrapf(err, "create db dir")
		}
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	case DriverMySQL:
	default:
		return nil, errb.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errb.Wrapf(err, "open db")
	}

	c := &Client{db: db, driver: driver}

	if err = c.migrate(context.Background()); err != nil {
		db.Close()
		return nil, errb.Wrapf(err, "migrate")
	}

	return c, nil
}

func (c *Client) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id          VARCHAR(64) PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			category    VARCHAR(64) NOT NULL,
			brand       VARCHAR(64) NOT NULL DEFAULT '',
			price       DOUBLE NOT NULL DEFAULT 0,
			description TEXT,
			in_stock    INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id                   VARCHAR(64) PRIMARY KEY,
			name                 VARCHAR(255) NOT NULL,
			preferred_categories TEXT,
			preferred_brands     TEXT,
			budget_min           DOUBLE NOT NULL DEFAULT 0,
			budget_max           DOUBLE NOT NULL DEFAULT 0
		)`,
	}
	if c.driver == DriverSQLite {
		statements = append(statements,
			`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`)
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}

	return nil
}

// Products returns in-stock products of category (any category when empty),
// cheapest first, at most limit.
func (c *Client) Products(ctx context.Context, category string, limit int) ([]Product, error) {
	query := `SELECT id, name, category, brand, price, COALESCE(description, ''), in_stock
		FROM products WHERE in_stock = 1`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY price, name LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, oops.In("catalog").With("category", category).Wrapf(err, "query products")
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		var p Product
		if err = rows.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.Price, &p.Description, &p.InStock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, p)
	}

	return result, rows.Err()
}

// CustomerProfile returns ErrNotFound for unknown ids.
func (c *Client) CustomerProfile(ctx context.Context, id string) (CustomerProfile, error) {
	var (
		p                  CustomerProfile
		categories, brands sql.NullString
	)

	err := c.db.QueryRowContext(ctx, `SELECT id, name, preferred_categories, preferred_brands, budget_min, budget_max
		FROM customers WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &categories, &brands, &p.BudgetMin, &p.BudgetMax)
	if errors.Is(err, sql.ErrNoRows) {
		return CustomerProfile{}, ErrNotFound
	}
	if err != nil {
		return CustomerProfile{}, oops.In("catalog").With("customer_id", id).Wrapf(err, "query customer")
	}

	p.PreferredCategories = splitList(categories.String)
	p.PreferredBrands = splitList(brands.String)

	return p, nil
}

func (c *Client) Shutdown() error {
	return c.db.Close()
}

func splitList(s string) []string {
	items := pie.Map(strings.Split(s, ","), strings.TrimSpace)
	return pie.Filter(items, func(item string) bool { return item != "" })
}
