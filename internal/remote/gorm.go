package remote

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ItemRecord is the remote items table.
type ItemRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string    `gorm:"size:200;not null;index" json:"name"`
	Quantity  float64   `gorm:"not null" json:"quantity"`
	Alias     string    `gorm:"size:200" json:"alias"`
	MP        float64   `gorm:"column:mp" json:"mp"`
	SP        float64   `gorm:"column:sp" json:"sp"`
	Unit      string    `gorm:"size:50" json:"unit"`
	Target    *float64  `json:"target"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName implements gorm's Tabler.
func (ItemRecord) TableName() string { return "items" }

// SaleRecord is the remote sales table.
type SaleRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string    `gorm:"size:200;not null;index" json:"name"`
	MP        float64   `gorm:"column:mp" json:"mp"`
	SP        float64   `gorm:"column:sp" json:"sp"`
	Qty       float64   `gorm:"not null" json:"qty"`
	Subtotal  float64   `gorm:"not null" json:"subtotal"`
	CreatedAt time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
}

// TableName implements gorm's Tabler.
func (SaleRecord) TableName() string { return "sales" }

// WorkerRecord is the remote workers table.
type WorkerRecord struct {
	ID       string `gorm:"primaryKey;size:64" json:"id"`
	FullName string `gorm:"size:200" json:"full_name"`
	Username string `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Email    string `gorm:"size:255" json:"email"`
	Phone    string `gorm:"size:50" json:"phone"`
	Password string `gorm:"size:255" json:"-"`
	Role     string `gorm:"size:20;not null;default:client" json:"role"`
}

// TableName implements gorm's Tabler.
func (WorkerRecord) TableName() string { return "workers" }

func modelFor(table string) (any, error) {
	switch table {
	case "items":
		return &ItemRecord{}, nil
	case "sales":
		return &SaleRecord{}, nil
	case "workers":
		return &WorkerRecord{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// Config configures a gorm-backed remote.
type Config struct {
	// DSN is the Postgres connection string.
	DSN string

	// AutoMigrate creates or alters the replicated tables on first use.
	AutoMigrate bool

	// Logger for remote activity (default: stderr logger)
	Logger *log.Logger
}

// Gorm is a Store backed by gorm. With a DSN it connects to Postgres lazily
// on first use, so an offline start never fails.
type Gorm struct {
	cfg    Config
	logger *log.Logger

	mu       sync.Mutex
	db       *gorm.DB
	migrated bool
}

// NewPostgres returns a lazily connected Postgres remote.
func NewPostgres(cfg Config) *Gorm {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Gorm{cfg: cfg, logger: cfg.Logger}
}

// NewWithDB wraps an already opened gorm connection (any dialect).
func NewWithDB(db *gorm.DB, cfg Config) *Gorm {
	g := NewPostgres(cfg)
	g.db = db
	return g
}

// conn returns the connection, opening and migrating it if needed.
func (g *Gorm) conn(ctx context.Context) (*gorm.DB, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db == nil {
		if g.cfg.DSN == "" {
			return nil, fmt.Errorf("remote DSN is not configured")
		}
		db, err := gorm.Open(postgres.Open(g.cfg.DSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to remote: %w", err)
		}
		g.db = db
		g.logger.Printf("Connected to remote")
	}

	if g.cfg.AutoMigrate && !g.migrated {
		if err := migrate(ctx, g.db); err != nil {
			return nil, err
		}
		g.migrated = true
	}

	return g.db.WithContext(ctx), nil
}

// Migrate creates or alters the replicated tables.
func (g *Gorm) Migrate(ctx context.Context) error {
	g.mu.Lock()
	db := g.db
	g.mu.Unlock()

	if db == nil {
		var err error
		if db, err = g.conn(ctx); err != nil {
			return err
		}
	}
	if err := migrate(ctx, db); err != nil {
		return err
	}

	g.mu.Lock()
	g.migrated = true
	g.mu.Unlock()
	return nil
}

func migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&ItemRecord{}, &SaleRecord{}, &WorkerRecord{}); err != nil {
		return fmt.Errorf("remote migrations failed: %w", err)
	}
	return nil
}

// Close releases the connection pool, if one was opened.
func (g *Gorm) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get remote pool: %w", err)
	}
	g.db = nil
	g.migrated = false
	return sqlDB.Close()
}

// Upsert implements Store.
func (g *Gorm) Upsert(ctx context.Context, table string, rows []Row) error {
	if err := checkRequest(table, nil, false); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	model, err := modelFor(table)
	if err != nil {
		return err
	}
	db, err := g.conn(ctx)
	if err != nil {
		return err
	}

	values := make([]map[string]any, 0, len(rows))
	columns := make(map[string]struct{})
	for _, row := range rows {
		if _, ok := row["id"]; !ok {
			return fmt.Errorf("upsert into %s: row without id", table)
		}
		values = append(values, map[string]any(row))
		for col := range row {
			if col != "id" {
				columns[col] = struct{}{}
			}
		}
	}

	updates := make([]string, 0, len(columns))
	for col := range columns {
		updates = append(updates, col)
	}
	sort.Strings(updates)

	res := db.Model(model).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(values)
	if res.Error != nil {
		return fmt.Errorf("failed to upsert %d rows into %s: %w", len(rows), table, res.Error)
	}
	return nil
}

// Select implements Store.
func (g *Gorm) Select(ctx context.Context, table string, filters ...Filter) ([]Row, error) {
	if err := checkRequest(table, filters, false); err != nil {
		return nil, err
	}
	model, err := modelFor(table)
	if err != nil {
		return nil, err
	}
	db, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}

	var found []map[string]any
	tx := db.Model(model)
	if len(filters) > 0 {
		tx = tx.Clauses(whereClause(filters))
	}
	if err := tx.Order("id").Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}

	rows := make([]Row, 0, len(found))
	for _, m := range found {
		rows = append(rows, Row(m))
	}
	return rows, nil
}

// Update implements Store.
func (g *Gorm) Update(ctx context.Context, table string, values Row, filters ...Filter) (int64, error) {
	if err := checkRequest(table, filters, true); err != nil {
		return 0, err
	}
	model, err := modelFor(table)
	if err != nil {
		return 0, err
	}
	db, err := g.conn(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Model(model).Clauses(whereClause(filters)).Updates(map[string]any(values))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

// Delete implements Store.
func (g *Gorm) Delete(ctx context.Context, table string, filters ...Filter) (int64, error) {
	if err := checkRequest(table, filters, true); err != nil {
		return 0, err
	}
	model, err := modelFor(table)
	if err != nil {
		return 0, err
	}
	db, err := g.conn(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Clauses(whereClause(filters)).Delete(model)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

// whereClause turns validated filters into a gorm WHERE clause.
func whereClause(filters []Filter) clause.Where {
	exprs := make([]clause.Expression, 0, len(filters))
	for _, f := range filters {
		col := clause.Column{Name: f.Column}
		switch f.Op {
		case OpEq:
			exprs = append(exprs, clause.Eq{Column: col, Value: f.Value})
		case OpNeq:
			exprs = append(exprs, clause.Neq{Column: col, Value: f.Value})
		case OpGt:
			exprs = append(exprs, clause.Gt{Column: col, Value: f.Value})
		case OpGte:
			exprs = append(exprs, clause.Gte{Column: col, Value: f.Value})
		case OpLt:
			exprs = append(exprs, clause.Lt{Column: col, Value: f.Value})
		case OpLte:
			exprs = append(exprs, clause.Lte{Column: col, Value: f.Value})
		case OpLike:
			exprs = append(exprs, clause.Like{Column: col, Value: f.Value})
		}
	}
	return clause.Where{Exprs: exprs}
}
