package valuation

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// PortfolioRecord is the stored form of a portfolio.
type PortfolioRecord struct {
	ID        string           `gorm:"primaryKey;size:64"`
	Owner     string           `gorm:"index;size:64;not null"`
	Positions []PositionRecord `gorm:"foreignKey:PortfolioID;constraint:OnDelete:CASCADE"`
}

func (PortfolioRecord) TableName() string { return "portfolios" }

// PositionRecord is one stored position.
type PositionRecord struct {
	ID          uint            `gorm:"primaryKey"`
	PortfolioID string          `gorm:"index;size:64;not null"`
	Symbol      string          `gorm:"size:32;not null"`
	Quantity    decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	CostBasis   decimal.Decimal `gorm:"type:numeric(38,18);not null"`
}

func (PositionRecord) TableName() string { return "portfolio_positions" }

// WatchlistRecord is the stored form of a watchlist. Symbols are comma separated.
type WatchlistRecord struct {
	ID      string `gorm:"primaryKey;size:64"`
	Owner   string `gorm:"index;size:64;not null"`
	Symbols string `gorm:"type:text;not null"`
}

func (WatchlistRecord) TableName() string { return "watchlists" }

// GormRepository stores portfolios and watchlists in a SQL database.
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

// NewGormRepository wraps db.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the tables.
func (r *GormRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&PortfolioRecord{}, &PositionRecord{}, &WatchlistRecord{}); err != nil {
		return errors.Wrap(err, "migrate valuation tables")
	}
	return nil
}

func (r *GormRepository) Portfolios(ctx context.Context) ([]Portfolio, error) {
	var records []PortfolioRecord
	if err := r.db.WithContext(ctx).Preload("Positions").Order("id").Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "find portfolios")
	}
	out := make([]Portfolio, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.toPortfolio())
	}
	return out, nil
}

// Portfolio loads one portfolio.
func (r *GormRepository) Portfolio(ctx context.Context, id string) (Portfolio, error) {
	var rec PortfolioRecord
	err := r.db.WithContext(ctx).Preload("Positions").Where("id = ?", id).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Portfolio{}, fmt.Errorf("%w: %s", exception.ErrUnknownPortfolio, id)
		}
		return Portfolio{}, errors.Wrapf(err, "find portfolio %s", id)
	}
	return rec.toPortfolio(), nil
}

func (r *GormRepository) Watchlists(ctx context.Context) ([]Watchlist, error) {
	var records []WatchlistRecord
	if err := r.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "find watchlists")
	}
	out := make([]Watchlist, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.toWatchlist())
	}
	return out, nil
}

// SavePortfolio replaces the stored portfolio and its positions.
func (r *GormRepository) SavePortfolio(ctx context.Context, p Portfolio) error {
	if err := p.Validate(); err != nil {
		return err
	}
	rec := portfolioRecord(p)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner"}),
		}).Omit("Positions").Create(&rec).Error; err != nil {
			return err
		}
		if err := tx.Where("portfolio_id = ?", p.ID).Delete(&PositionRecord{}).Error; err != nil {
			return err
		}
		if len(rec.Positions) == 0 {
			return nil
		}
		return tx.Create(&rec.Positions).Error
	})
	if err != nil {
		return errors.Wrapf(err, "save portfolio %s", p.ID)
	}
	return nil
}

func (r *GormRepository) SaveWatchlist(ctx context.Context, w Watchlist) error {
	if err := w.Validate(); err != nil {
		return err
	}
	rec := WatchlistRecord{ID: w.ID, Owner: w.Owner, Symbols: strings.Join(w.Symbols, ",")}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner", "symbols"}),
	}).Create(&rec).Error
	if err != nil {
		return errors.Wrapf(err, "save watchlist %s", w.ID)
	}
	return nil
}

func (r *GormRepository) DeletePortfolio(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("portfolio_id = ?", id).Delete(&PositionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&PortfolioRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", exception.ErrUnknownPortfolio, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete portfolio %s: %w", id, err)
	}
	return nil
}

func (r *GormRepository) DeleteWatchlist(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&WatchlistRecord{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete watchlist %s", id)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", exception.ErrUnknownWatchlist, id)
	}
	return nil
}

func portfolioRecord(p Portfolio) PortfolioRecord {
	rec := PortfolioRecord{
		ID:        p.ID,
		Owner:     p.Owner,
		Positions: make([]PositionRecord, 0, len(p.Positions)),
	}
	for _, pos := range p.Positions {
		rec.Positions = append(rec.Positions, PositionRecord{
			PortfolioID: p.ID,
			Symbol:      pos.Symbol,
			Quantity:    pos.Quantity,
			CostBasis:   pos.CostBasis,
		})
	}
	return rec
}

func (rec PortfolioRecord) toPortfolio() Portfolio {
	p := Portfolio{
		ID:        rec.ID,
		Owner:     rec.Owner,
		Positions: make([]Position, 0, len(rec.Positions)),
	}
	for _, pos := range rec.Positions {
		p.Positions = append(p.Positions, Position{
			Symbol:    pos.Symbol,
			Quantity:  pos.Quantity,
			CostBasis: pos.CostBasis,
		})
	}
	return p
}

func (rec WatchlistRecord) toWatchlist() Watchlist {
	w := Watchlist{ID: rec.ID, Owner: rec.Owner}
	if rec.Symbols != "" {
		w.Symbols = strings.Split(rec.Symbols, ",")
	}
	return w
}
