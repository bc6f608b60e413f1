// Package postgres persists pool snapshots, window metrics and progress state.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolcore/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	token_a TEXT NOT NULL,
	token_b TEXT NOT NULL,
	sqrt_price_x96 NUMERIC NOT NULL,
	sqrt_min_price_x96 NUMERIC NOT NULL,
	sqrt_max_price_x96 NUMERIC NOT NULL,
	liquidity NUMERIC NOT NULL,
	reserve_a NUMERIC NOT NULL,
	reserve_b NUMERIC NOT NULL,
	fee_a_per_liquidity NUMERIC NOT NULL,
	fee_b_per_liquidity NUMERIC NOT NULL,
	protocol_a_fee NUMERIC NOT NULL,
	protocol_b_fee NUMERIC NOT NULL,
	partner_a_fee NUMERIC NOT NULL,
	partner_b_fee NUMERIC NOT NULL,
	version BIGINT NOT NULL,
	point BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS position_snapshots (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	owner TEXT NOT NULL,
	unlocked NUMERIC NOT NULL,
	vested NUMERIC NOT NULL,
	permanent NUMERIC NOT NULL,
	fee_a_pending NUMERIC NOT NULL,
	fee_b_pending NUMERIC NOT NULL,
	fee_a_claimed NUMERIC NOT NULL,
	fee_b_claimed NUMERIC NOT NULL,
	reward0_pending NUMERIC NOT NULL,
	reward1_pending NUMERIC NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address, owner)
);
CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	volume_a NUMERIC NOT NULL,
	volume_b NUMERIC NOT NULL,
	lp_fee_a NUMERIC NOT NULL,
	lp_fee_b NUMERIC NOT NULL,
	protocol_fee_a NUMERIC NOT NULL,
	protocol_fee_b NUMERIC NOT NULL,
	partner_fee_a NUMERIC NOT NULL,
	partner_fee_b NUMERIC NOT NULL,
	referral_fee_a NUMERIC NOT NULL,
	referral_fee_b NUMERIC NOT NULL,
	fee_rate_a NUMERIC,
	fee_rate_b NUMERIC,
	tvl_a NUMERIC,
	tvl_b NUMERIC,
	apr NUMERIC,
	tvl_method TEXT NOT NULL,
	last_price NUMERIC,
	last_sqrt_price_x96 NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS poolsim_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for snapshots and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPoolSnapshot inserts or replaces the latest view of a pool.
func (s *Store) UpsertPoolSnapshot(ctx context.Context, p model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			chain_id, pool_address, token_a, token_b, sqrt_price_x96, sqrt_min_price_x96, sqrt_max_price_x96,
			liquidity, reserve_a, reserve_b, fee_a_per_liquidity, fee_b_per_liquidity,
			protocol_a_fee, protocol_b_fee, partner_a_fee, partner_b_fee, version, point, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now())
		ON CONFLICT (chain_id, pool_address)
		DO UPDATE SET
			sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
			liquidity = EXCLUDED.liquidity,
			reserve_a = EXCLUDED.reserve_a,
			reserve_b = EXCLUDED.reserve_b,
			fee_a_per_liquidity = EXCLUDED.fee_a_per_liquidity,
			fee_b_per_liquidity = EXCLUDED.fee_b_per_liquidity,
			protocol_a_fee = EXCLUDED.protocol_a_fee,
			protocol_b_fee = EXCLUDED.protocol_b_fee,
			partner_a_fee = EXCLUDED.partner_a_fee,
			partner_b_fee = EXCLUDED.partner_b_fee,
			version = EXCLUDED.version,
			point = EXCLUDED.point,
			updated_at = now()
	`,
		int64(p.ChainID),
		p.Address,
		p.TokenA,
		p.TokenB,
		p.SqrtPriceX96,
		p.SqrtMinPriceX96,
		p.SqrtMaxPriceX96,
		p.Liquidity,
		p.ReserveA,
		p.ReserveB,
		p.FeeAPerLiquidity,
		p.FeeBPerLiquidity,
		p.ProtocolAFee,
		p.ProtocolBFee,
		p.PartnerAFee,
		p.PartnerBFee,
		int64(p.Version),
		int64(p.Point),
	)
	if err != nil {
		return fmt.Errorf("upsert pool snapshot: %w", err)
	}
	return nil
}

// UpsertPositions inserts or replaces position views.
func (s *Store) UpsertPositions(ctx context.Context, positions []model.PositionSnapshot) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pos := range positions {
		batch.Queue(`
			INSERT INTO position_snapshots (
				chain_id, pool_address, owner, unlocked, vested, permanent,
				fee_a_pending, fee_b_pending, fee_a_claimed, fee_b_claimed,
				reward0_pending, reward1_pending, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
			ON CONFLICT (chain_id, pool_address, owner)
			DO UPDATE SET
				unlocked = EXCLUDED.unlocked,
				vested = EXCLUDED.vested,
				permanent = EXCLUDED.permanent,
				fee_a_pending = EXCLUDED.fee_a_pending,
				fee_b_pending = EXCLUDED.fee_b_pending,
				fee_a_claimed = EXCLUDED.fee_a_claimed,
				fee_b_claimed = EXCLUDED.fee_b_claimed,
				reward0_pending = EXCLUDED.reward0_pending,
				reward1_pending = EXCLUDED.reward1_pending,
				updated_at = now()
		`,
			int64(pos.ChainID),
			pos.PoolAddress,
			pos.Owner,
			pos.Unlocked,
			pos.Vested,
			pos.Permanent,
			pos.FeeAPending,
			pos.FeeBPending,
			pos.FeeAClaimed,
			pos.FeeBClaimed,
			pos.Reward0,
			pos.Reward1,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume_a, volume_b, lp_fee_a, lp_fee_b, protocol_fee_a, protocol_fee_b,
				partner_fee_a, partner_fee_b, referral_fee_a, referral_fee_b,
				fee_rate_a, fee_rate_b, tvl_a, tvl_b, apr, tvl_method, last_price, last_sqrt_price_x96,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				lp_fee_a = EXCLUDED.lp_fee_a,
				lp_fee_b = EXCLUDED.lp_fee_b,
				protocol_fee_a = EXCLUDED.protocol_fee_a,
				protocol_fee_b = EXCLUDED.protocol_fee_b,
				partner_fee_a = EXCLUDED.partner_fee_a,
				partner_fee_b = EXCLUDED.partner_fee_b,
				referral_fee_a = EXCLUDED.referral_fee_a,
				referral_fee_b = EXCLUDED.referral_fee_b,
				fee_rate_a = EXCLUDED.fee_rate_a,
				fee_rate_b = EXCLUDED.fee_rate_b,
				tvl_a = EXCLUDED.tvl_a,
				tvl_b = EXCLUDED.tvl_b,
				apr = EXCLUDED.apr,
				tvl_method = EXCLUDED.tvl_method,
				last_price = EXCLUDED.last_price,
				last_sqrt_price_x96 = EXCLUDED.last_sqrt_price_x96,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.VolumeA,
			m.VolumeB,
			m.LPFeeA,
			m.LPFeeB,
			m.ProtocolFeeA,
			m.ProtocolFeeB,
			m.PartnerFeeA,
			m.PartnerFeeB,
			m.ReferralFeeA,
			m.ReferralFeeB,
			m.FeeRateA,
			m.FeeRateB,
			m.TVLA,
			m.TVLB,
			m.APR,
			m.TVLMethod,
			m.LastPrice,
			m.LastSqrtPrice,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM poolsim_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO poolsim_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
