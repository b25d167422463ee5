package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

type Postgres struct {
	db *gorm.DB
}

// OpenPostgres opens a pgx pool, hands it to gorm and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("gorm open: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	closer := func() {
		_ = sqlDB.Close()
		pool.Close()
	}
	return &Postgres{db: db}, closer, nil
}

// gormConfig turns on dialect error translation so unique violations come
// back as gorm.ErrDuplicatedKey.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func (p *Postgres) Atomically(ctx context.Context, fn func(tx Store) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx})
	})
}

func (p *Postgres) GetAuction(ctx context.Context, id string) (engine.Auction, error) {
	var row auctionRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return engine.Auction{}, notFound(err, "auction "+id)
	}
	var lots []lotRow
	if err := p.db.WithContext(ctx).Where("auction_id = ?", id).Order("order_index asc, id asc").Find(&lots).Error; err != nil {
		return engine.Auction{}, err
	}
	a := engine.Auction{
		ID:            row.ID,
		Title:         row.Title,
		Status:        engine.AuctionStatus(row.Status),
		CommissionPct: row.CommissionPct,
	}
	for _, l := range lots {
		a.Lots = append(a.Lots, lotFromRow(l))
	}
	return a, nil
}

func (p *Postgres) UpdateAuctionStatus(ctx context.Context, id string, s engine.AuctionStatus) error {
	res := p.db.WithContext(ctx).Model(&auctionRow{}).Where("id = ?", id).Update("status", string(s))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("auction %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) GetLot(ctx context.Context, id string) (engine.Lot, error) {
	var row lotRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return engine.Lot{}, notFound(err, "lot "+id)
	}
	return lotFromRow(row), nil
}

func (p *Postgres) GetLotForUpdate(ctx context.Context, id string) (engine.Lot, error) {
	var row lotRow
	err := p.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "id = ?", id).Error
	if err != nil {
		return engine.Lot{}, notFound(err, "lot "+id)
	}
	return lotFromRow(row), nil
}

func (p *Postgres) UpdateLot(ctx context.Context, l engine.Lot) error {
	row := lotToRow(l)
	res := p.db.WithContext(ctx).Model(&lotRow{}).Where("id = ?", l.ID).Updates(map[string]any{
		"status":        row.Status,
		"current_price": row.CurrentPrice,
		"winner_id":     row.WinnerID,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lot %s: %w", l.ID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) GetBidder(ctx context.Context, id string) (engine.Bidder, error) {
	var row bidderRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return engine.Bidder{}, notFound(err, "bidder "+id)
	}
	return bidderFromRow(row), nil
}

func (p *Postgres) FindBidder(ctx context.Context, auctionID, userID string) (engine.Bidder, error) {
	var row bidderRow
	err := p.db.WithContext(ctx).Where("auction_id = ? AND user_id = ?", auctionID, userID).First(&row).Error
	if err != nil {
		return engine.Bidder{}, notFound(err, "bidder for user "+userID)
	}
	return bidderFromRow(row), nil
}

func (p *Postgres) FindBidderByPaddle(ctx context.Context, auctionID string, paddle int) (engine.Bidder, error) {
	var row bidderRow
	err := p.db.WithContext(ctx).Where("auction_id = ? AND paddle_number = ?", auctionID, paddle).First(&row).Error
	if err != nil {
		return engine.Bidder{}, notFound(err, fmt.Sprintf("paddle %d", paddle))
	}
	return bidderFromRow(row), nil
}

func (p *Postgres) ListBids(ctx context.Context, lotID string) ([]engine.Bid, error) {
	var rows []bidRow
	if err := p.db.WithContext(ctx).Where("lot_id = ?", lotID).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Bid, 0, len(rows))
	for _, r := range rows {
		out = append(out, engine.Bid{
			ID:        r.ID,
			LotID:     r.LotID,
			BidderID:  r.BidderID,
			Amount:    r.Amount,
			Source:    engine.BidSource(r.Source),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (p *Postgres) CountBids(ctx context.Context, lotID string) (int, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&bidRow{}).Where("lot_id = ?", lotID).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *Postgres) InsertBid(ctx context.Context, b engine.Bid) error {
	return p.db.WithContext(ctx).Create(&bidRow{
		ID:        b.ID,
		LotID:     b.LotID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		Source:    string(b.Source),
		CreatedAt: b.CreatedAt,
	}).Error
}

func (p *Postgres) InsertAdjudication(ctx context.Context, a engine.Adjudication) error {
	err := p.db.WithContext(ctx).Create(&adjudicationRow{
		ID:           a.ID,
		AuctionID:    a.AuctionID,
		LotID:        a.LotID,
		WinningBidID: a.WinningBidID,
		BidderID:     a.BidderID,
		FinalPrice:   a.FinalPrice,
		CreatedAt:    a.CreatedAt,
	}).Error
	return adjudicationErr(a.LotID, err)
}

func adjudicationErr(lotID string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("adjudication for lot %s: %w", lotID, ErrConflict)
	}
	return err
}

func (p *Postgres) GetAdjudication(ctx context.Context, id string) (engine.Adjudication, error) {
	var r adjudicationRow
	if err := p.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return engine.Adjudication{}, notFound(err, "adjudication "+id)
	}
	return engine.Adjudication{
		ID:           r.ID,
		AuctionID:    r.AuctionID,
		LotID:        r.LotID,
		WinningBidID: r.WinningBidID,
		BidderID:     r.BidderID,
		FinalPrice:   r.FinalPrice,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func (p *Postgres) InsertAudit(ctx context.Context, e engine.AuditEntry) error {
	return p.db.WithContext(ctx).Create(&auditRow{
		ID:        e.ID,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Action:    e.Action,
		ActorID:   e.ActorID,
		Data:      e.Data,
		CreatedAt: e.CreatedAt,
	}).Error
}

func (p *Postgres) FindPaymentOrder(ctx context.Context, adjudicationID string) (PaymentOrder, error) {
	var r paymentRow
	if err := p.db.WithContext(ctx).Where("adjudication_id = ?", adjudicationID).First(&r).Error; err != nil {
		return PaymentOrder{}, notFound(err, "payment for "+adjudicationID)
	}
	return paymentFromRow(r), nil
}

func (p *Postgres) SavePaymentOrder(ctx context.Context, o PaymentOrder) error {
	row, err := paymentToRow(o)
	if err != nil {
		return fmt.Errorf("payment amounts: %w", err)
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "adjudication_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "provider_ref", "url", "expires_at"}),
	}).Create(&row).Error
}
