package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revloop/distribution-engine/internal/model"
	"github.com/revloop/distribution-engine/internal/money"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as BIGINT minor units next to the currency code;
// no NUMERIC, no floats.
//
// Expected schema:
//
//	deals(id TEXT PK, name TEXT, currency TEXT, funding_goal BIGINT,
//	      total_raised BIGINT, revenue_share_bps BIGINT, status TEXT,
//	      default_reason TEXT, created_at TIMESTAMPTZ)
//	positions(id TEXT PK, deal_id TEXT, investor_id TEXT, currency TEXT,
//	      principal BIGINT, target_multiplier_bps BIGINT, cap BIGINT,
//	      repaid_to_date BIGINT, status TEXT, created_at TIMESTAMPTZ,
//	      UNIQUE(deal_id, investor_id))
//	revenue_reports(id TEXT PK, deal_id TEXT, period_key TEXT, currency TEXT,
//	      reported_revenue BIGINT, submitted_at TIMESTAMPTZ, verified BOOL,
//	      UNIQUE(deal_id, period_key))
//	distributions(id TEXT PK, deal_id TEXT, period_key TEXT, currency TEXT,
//	      pool BIGINT, leftover BIGINT, created_at TIMESTAMPTZ,
//	      UNIQUE(deal_id, period_key))
//	payouts(id TEXT PK, deal_id TEXT, position_id TEXT, period_key TEXT,
//	      currency TEXT, amount BIGINT, created_at TIMESTAMPTZ)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) CreateDeal(ctx context.Context, d *model.Deal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, name, currency, funding_goal, total_raised, revenue_share_bps, status, default_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.Name, d.Currency, d.FundingGoal.Units, d.TotalRaised.Units,
		d.RevenueShareBps, d.Status, d.DefaultReason, d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: deal %s", ErrConflict, d.ID)
	}
	return err
}

const dealColumns = `id, name, currency, funding_goal, total_raised, revenue_share_bps, status, default_reason, created_at`

func scanDeal(row pgx.Row) (*model.Deal, error) {
	var d model.Deal
	var goal, raised int64
	if err := row.Scan(&d.ID, &d.Name, &d.Currency, &goal, &raised,
		&d.RevenueShareBps, &d.Status, &d.DefaultReason, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.FundingGoal = money.New(goal, d.Currency)
	d.TotalRaised = money.New(raised, d.Currency)
	return &d, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: deal %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get deal %s: %w", id, err)
	}
	return d, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context) ([]model.Deal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+dealColumns+` FROM deals ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

func (s *PostgresStore) UpdateDealStatus(ctx context.Context, id string, status model.DealStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET status = $2, default_reason = CASE WHEN $2 = 'DEFAULTED' THEN $3 ELSE default_reason END
		 WHERE id = $1`,
		id, status, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deal %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO positions (id, deal_id, investor_id, currency, principal, target_multiplier_bps, cap, repaid_to_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.DealID, p.InvestorID, p.Principal.Currency,
		p.Principal.Units, p.TargetMultiplierBps, p.Cap.Units, p.RepaidToDate.Units,
		p.Status, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: investor %s already holds a position in deal %s",
			ErrConflict, p.InvestorID, p.DealID)
	}
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE deals SET total_raised = total_raised + $2 WHERE id = $1`,
		p.DealID, p.Principal.Units,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deal %s", ErrNotFound, p.DealID)
	}

	return tx.Commit(ctx)
}

const positionColumns = `id, deal_id, investor_id, currency, principal, target_multiplier_bps, cap, repaid_to_date, status, created_at`

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var currency string
		var principal, cap, repaid int64
		if err := rows.Scan(&p.ID, &p.DealID, &p.InvestorID, &currency,
			&principal, &p.TargetMultiplierBps, &cap, &repaid,
			&p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Principal = money.New(principal, currency)
		p.Cap = money.New(cap, currency)
		p.RepaidToDate = money.New(repaid, currency)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) queryPositions(ctx context.Context, where string, args ...any) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *PostgresStore) ListPositionsByDeal(ctx context.Context, dealID string) ([]model.Position, error) {
	return s.queryPositions(ctx, `deal_id = $1`, dealID)
}

func (s *PostgresStore) ListActivePositions(ctx context.Context, dealID string) ([]model.Position, error) {
	return s.queryPositions(ctx, `deal_id = $1 AND status = $2`, dealID, model.PositionActive)
}

func (s *PostgresStore) GetPositionByInvestor(ctx context.Context, investorID, dealID string) (*model.Position, error) {
	positions, err := s.queryPositions(ctx, `investor_id = $1 AND deal_id = $2`, investorID, dealID)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: position for investor %s in deal %s", ErrNotFound, investorID, dealID)
	}
	return &positions[0], nil
}

func (s *PostgresStore) ListPositionsByInvestor(ctx context.Context, investorID string) ([]model.Position, error) {
	return s.queryPositions(ctx, `investor_id = $1`, investorID)
}

func (s *PostgresStore) ListRevenueReports(ctx context.Context, dealID string) ([]model.RevenueReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, period_key, currency, reported_revenue, submitted_at, verified
		 FROM revenue_reports WHERE deal_id = $1 ORDER BY period_key`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.RevenueReport
	for rows.Next() {
		var r model.RevenueReport
		var currency string
		var revenue int64
		if err := rows.Scan(&r.ID, &r.DealID, &r.PeriodKey, &currency,
			&revenue, &r.SubmittedAt, &r.Verified); err != nil {
			return nil, err
		}
		r.ReportedRevenue = money.New(revenue, currency)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) GetDistribution(ctx context.Context, dealID, periodKey string) (*model.Distribution, error) {
	var d model.Distribution
	var currency string
	var pool, leftover int64

	err := s.pool.QueryRow(ctx,
		`SELECT id, deal_id, period_key, currency, pool, leftover, created_at
		 FROM distributions WHERE deal_id = $1 AND period_key = $2`,
		dealID, periodKey).
		Scan(&d.ID, &d.DealID, &d.PeriodKey, &currency, &pool, &leftover, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: distribution for deal %s period %s", ErrNotFound, dealID, periodKey)
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution %s/%s: %w", dealID, periodKey, err)
	}
	d.Pool = money.New(pool, currency)
	d.LeftoverToBusiness = money.New(leftover, currency)

	d.Payouts, err = s.queryPayouts(ctx, `deal_id = $1 AND period_key = $2`, dealID, periodKey)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListDistributionsByDeal(ctx context.Context, dealID string) ([]model.Distribution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, period_key, currency, pool, leftover, created_at
		 FROM distributions WHERE deal_id = $1 ORDER BY period_key`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dists []model.Distribution
	for rows.Next() {
		var d model.Distribution
		var currency string
		var pool, leftover int64
		if err := rows.Scan(&d.ID, &d.DealID, &d.PeriodKey, &currency,
			&pool, &leftover, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Pool = money.New(pool, currency)
		d.LeftoverToBusiness = money.New(leftover, currency)
		dists = append(dists, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range dists {
		payouts, err := s.queryPayouts(ctx, `deal_id = $1 AND period_key = $2`,
			dists[i].DealID, dists[i].PeriodKey)
		if err != nil {
			return nil, err
		}
		dists[i].Payouts = payouts
	}
	return dists, nil
}

func (s *PostgresStore) queryPayouts(ctx context.Context, where string, args ...any) ([]model.Payout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, position_id, period_key, currency, amount, created_at
		 FROM payouts WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []model.Payout
	for rows.Next() {
		var p model.Payout
		var currency string
		var amount int64
		if err := rows.Scan(&p.ID, &p.DealID, &p.PositionID, &p.PeriodKey,
			&currency, &amount, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = money.New(amount, currency)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// ApplyDistribution persists the whole batch in one serializable transaction.
// The unique index on distributions(deal_id, period_key) is the at-most-once
// guard; a concurrent duplicate surfaces as ErrDuplicatePeriod.
func (s *PostgresStore) ApplyDistribution(ctx context.Context, batch *ApplyBatch) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	dist := batch.Distribution
	_, err = tx.Exec(ctx,
		`INSERT INTO distributions (id, deal_id, period_key, currency, pool, leftover, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		dist.ID, dist.DealID, dist.PeriodKey, dist.Pool.Currency,
		dist.Pool.Units, dist.LeftoverToBusiness.Units, dist.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: deal %s period %s", ErrDuplicatePeriod, dist.DealID, dist.PeriodKey)
	}
	if err != nil {
		return err
	}

	r := batch.Report
	_, err = tx.Exec(ctx,
		`INSERT INTO revenue_reports (id, deal_id, period_key, currency, reported_revenue, submitted_at, verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.DealID, r.PeriodKey, r.ReportedRevenue.Currency,
		r.ReportedRevenue.Units, r.SubmittedAt, r.Verified,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: deal %s period %s", ErrDuplicatePeriod, r.DealID, r.PeriodKey)
	}
	if err != nil {
		return err
	}

	for _, p := range dist.Payouts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO payouts (id, deal_id, position_id, period_key, currency, amount, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.DealID, p.PositionID, p.PeriodKey,
			p.Amount.Currency, p.Amount.Units, p.CreatedAt,
		); err != nil {
			return err
		}
	}

	for _, pos := range batch.Positions {
		tag, err := tx.Exec(ctx,
			`UPDATE positions SET repaid_to_date = $2, status = $3 WHERE id = $1`,
			pos.ID, pos.RepaidToDate.Units, pos.Status,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: position %s", ErrNotFound, pos.ID)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE deals SET status = $2 WHERE id = $1`,
		dist.DealID, batch.DealStatus,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deal %s", ErrNotFound, dist.DealID)
	}

	return tx.Commit(ctx)
}
