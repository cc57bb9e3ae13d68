package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// DuckDBRepository stores engine state in a DuckDB database file. Decimal
// columns are stored as text to keep exact values.
type DuckDBRepository struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

var _ Repository = (*DuckDBRepository)(nil)

// NewDuckDBRepository opens (or creates) the database at path and ensures the
// schema exists. An empty path opens an in-memory database.
func NewDuckDBRepository(path string, logger *logger.Logger) (*DuckDBRepository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open duckdb database", err)
	}

	repo := &DuckDBRepository{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := repo.createSchema(); err != nil {
		db.Close()

		return nil, err
	}

	return repo, nil
}

func (r *DuckDBRepository) createSchema() error {
	schema := `
	CREATE SEQUENCE IF NOT EXISTS grid_configs_id_seq;
	CREATE TABLE IF NOT EXISTS grid_configs (
		id BIGINT PRIMARY KEY DEFAULT nextval('grid_configs_id_seq'),
		pair VARCHAR NOT NULL UNIQUE,
		total_capital VARCHAR NOT NULL,
		grid_levels INTEGER NOT NULL,
		price_range_percent VARCHAR NOT NULL,
		stop_loss_percent VARCHAR NOT NULL,
		enable_stop_loss BOOLEAN NOT NULL DEFAULT FALSE,
		enable_trailing_up BOOLEAN NOT NULL DEFAULT FALSE,
		is_running BOOLEAN NOT NULL DEFAULT FALSE,
		last_decision VARCHAR NOT NULL DEFAULT '',
		status_reason VARCHAR NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS grid_orders (
		exchange_order_id VARCHAR PRIMARY KEY,
		client_order_id VARCHAR NOT NULL,
		pair VARCHAR NOT NULL,
		side VARCHAR NOT NULL,
		order_type VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		price VARCHAR NOT NULL,
		quantity VARCHAR NOT NULL,
		executed_quantity VARCHAR NOT NULL DEFAULT '0',
		origin_buy_price VARCHAR,
		parent_order_id VARCHAR,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE SEQUENCE IF NOT EXISTS grid_trades_id_seq;
	CREATE TABLE IF NOT EXISTS grid_trades (
		id BIGINT PRIMARY KEY DEFAULT nextval('grid_trades_id_seq'),
		pair VARCHAR NOT NULL,
		buy_order_id VARCHAR NOT NULL,
		sell_order_id VARCHAR NOT NULL,
		buy_price VARCHAR NOT NULL,
		sell_price VARCHAR NOT NULL,
		quantity VARCHAR NOT NULL,
		profit VARCHAR NOT NULL,
		profit_percent VARCHAR NOT NULL,
		executed_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pair_decisions (
		pair VARCHAR NOT NULL,
		decision VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create schema", err)
	}

	return nil
}

// SaveConfig inserts or updates a pair config.
func (r *DuckDBRepository) SaveConfig(ctx context.Context, cfg types.GridConfig) (types.GridConfig, error) {
	cfg.UpdatedAt = time.Now().UTC()

	existing, err := r.GetConfig(ctx, cfg.Pair)
	if err != nil && !errors.HasCode(err, errors.ErrCodeConfigNotFound) {
		return types.GridConfig{}, err
	}

	if err == nil {
		cfg.ID = existing.ID
		query, args, buildErr := r.sq.Update("grid_configs").
			Set("total_capital", cfg.TotalCapital.String()).
			Set("grid_levels", cfg.GridLevels).
			Set("price_range_percent", cfg.PriceRangePercent.String()).
			Set("stop_loss_percent", cfg.StopLossPercent.String()).
			Set("enable_stop_loss", cfg.EnableStopLoss).
			Set("enable_trailing_up", cfg.EnableTrailingUp).
			Set("is_running", cfg.IsRunning).
			Set("last_decision", string(cfg.LastDecision)).
			Set("status_reason", cfg.StatusReason).
			Set("updated_at", cfg.UpdatedAt).
			Where(squirrel.Eq{"id": cfg.ID}).
			ToSql()
		if buildErr != nil {
			return types.GridConfig{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build config update", buildErr)
		}

		if _, execErr := r.db.ExecContext(ctx, query, args...); execErr != nil {
			return types.GridConfig{}, errors.Wrap(errors.ErrCodeSaveFailed, "failed to update config", execErr)
		}

		return cfg, nil
	}

	query, args, buildErr := r.sq.Insert("grid_configs").
		Columns("pair", "total_capital", "grid_levels", "price_range_percent",
			"stop_loss_percent", "enable_stop_loss", "enable_trailing_up",
			"is_running", "last_decision", "status_reason", "updated_at").
		Values(string(cfg.Pair), cfg.TotalCapital.String(), cfg.GridLevels,
			cfg.PriceRangePercent.String(), cfg.StopLossPercent.String(),
			cfg.EnableStopLoss, cfg.EnableTrailingUp,
			cfg.IsRunning, string(cfg.LastDecision), cfg.StatusReason, cfg.UpdatedAt).
		ToSql()
	if buildErr != nil {
		return types.GridConfig{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build config insert", buildErr)
	}

	if _, execErr := r.db.ExecContext(ctx, query, args...); execErr != nil {
		return types.GridConfig{}, errors.Wrap(errors.ErrCodeSaveFailed, "failed to insert config", execErr)
	}

	return r.GetConfig(ctx, cfg.Pair)
}

// GetConfig returns the config for a pair.
func (r *DuckDBRepository) GetConfig(ctx context.Context, pair types.TradingPair) (types.GridConfig, error) {
	query, args, err := r.configSelect().Where(squirrel.Eq{"pair": string(pair)}).ToSql()
	if err != nil {
		return types.GridConfig{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build config query", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)

	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.GridConfig{}, errors.Newf(errors.ErrCodeConfigNotFound, "no config for pair %s", pair)
		}

		return types.GridConfig{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan config", err)
	}

	return cfg, nil
}

// GetAllConfigs returns every stored config.
func (r *DuckDBRepository) GetAllConfigs(ctx context.Context) ([]types.GridConfig, error) {
	query, args, err := r.configSelect().OrderBy("pair").ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build configs query", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query configs", err)
	}
	defer rows.Close()

	configs := make([]types.GridConfig, 0)

	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan config", err)
		}

		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// UpdateConfigStatus persists the running flag, decision and reason.
func (r *DuckDBRepository) UpdateConfigStatus(ctx context.Context, id int64, isRunning bool, decision types.Decision, reason string) error {
	query, args, err := r.sq.Update("grid_configs").
		Set("is_running", isRunning).
		Set("last_decision", string(decision)).
		Set("status_reason", reason).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build status update", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSaveFailed, "failed to update config status", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return errors.Newf(errors.ErrCodeConfigNotFound, "no config with id %d", id)
	}

	return nil
}

// SaveOrder inserts or updates a tracked order.
func (r *DuckDBRepository) SaveOrder(ctx context.Context, order types.Order) error {
	deleteQuery, deleteArgs, err := r.sq.Delete("grid_orders").
		Where(squirrel.Eq{"exchange_order_id": order.ExchangeOrderID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build order delete", err)
	}

	if _, err := r.db.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return errors.Wrap(errors.ErrCodeSaveFailed, "failed to replace order", err)
	}

	var originBuyPrice, parentOrderID any

	order.OriginBuyPrice.IfSome(func(price decimal.Decimal) {
		originBuyPrice = price.String()
	})
	order.ParentOrderID.IfSome(func(id string) {
		parentOrderID = id
	})

	query, args, err := r.sq.Insert("grid_orders").
		Columns("exchange_order_id", "client_order_id", "pair", "side", "order_type",
			"status", "price", "quantity", "executed_quantity",
			"origin_buy_price", "parent_order_id", "created_at", "updated_at").
		Values(order.ExchangeOrderID, order.ClientOrderID, string(order.Pair),
			string(order.Side), string(order.Type), string(order.Status),
			order.Price.String(), order.Quantity.String(), order.ExecutedQuantity.String(),
			originBuyPrice, parentOrderID, order.CreatedAt, order.UpdatedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build order insert", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeSaveFailed, "failed to save order", err)
	}

	return nil
}

// GetOpenOrders returns the tracked orders still marked open for a pair.
func (r *DuckDBRepository) GetOpenOrders(ctx context.Context, pair types.TradingPair) ([]types.Order, error) {
	query, args, err := r.sq.Select("exchange_order_id", "client_order_id", "pair", "side",
		"order_type", "status", "price", "quantity", "executed_quantity",
		"origin_buy_price", "parent_order_id", "created_at", "updated_at").
		From("grid_orders").
		Where(squirrel.And{
			squirrel.Eq{"pair": string(pair)},
			squirrel.Eq{"status": []string{string(types.OrderStatusNew), string(types.OrderStatusPartiallyFilled)}},
		}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build open orders query", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query open orders", err)
	}
	defer rows.Close()

	orders := make([]types.Order, 0)

	for rows.Next() {
		var (
			order                          types.Order
			pairRaw, side, orderType, status string
			price, quantity, executed      string
			originBuyPrice, parentOrderID  sql.NullString
		)

		if err := rows.Scan(&order.ExchangeOrderID, &order.ClientOrderID, &pairRaw, &side,
			&orderType, &status, &price, &quantity, &executed,
			&originBuyPrice, &parentOrderID, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order", err)
		}

		order.Pair = types.TradingPair(pairRaw)
		order.Side = types.OrderSide(side)
		order.Type = types.OrderType(orderType)
		order.Status = types.OrderStatus(status)
		order.Price, _ = decimal.NewFromString(price)
		order.Quantity, _ = decimal.NewFromString(quantity)
		order.ExecutedQuantity, _ = decimal.NewFromString(executed)

		if originBuyPrice.Valid {
			if parsed, err := decimal.NewFromString(originBuyPrice.String); err == nil {
				order.OriginBuyPrice = optional.Some(parsed)
			}
		}

		if parentOrderID.Valid {
			order.ParentOrderID = optional.Some(parentOrderID.String)
		}

		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// CloseOrder marks a tracked order with a terminal status.
func (r *DuckDBRepository) CloseOrder(ctx context.Context, exchangeOrderID string, status types.OrderStatus) error {
	query, args, err := r.sq.Update("grid_orders").
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"exchange_order_id": exchangeOrderID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build close order update", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSaveFailed, "failed to close order", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return errors.Newf(errors.ErrCodeOrderNotFound, "no tracked order %s", exchangeOrderID)
	}

	return nil
}

// PurgeOpenOrders removes all open order records for a pair.
func (r *DuckDBRepository) PurgeOpenOrders(ctx context.Context, pair types.TradingPair) (int, error) {
	open, err := r.GetOpenOrders(ctx, pair)
	if err != nil {
		return 0, err
	}

	query, args, err := r.sq.Delete("grid_orders").
		Where(squirrel.And{
			squirrel.Eq{"pair": string(pair)},
			squirrel.Eq{"status": []string{string(types.OrderStatusNew), string(types.OrderStatusPartiallyFilled)}},
		}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build purge query", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, errors.Wrap(errors.ErrCodeSaveFailed, "failed to purge open orders", err)
	}

	return len(open), nil
}

// SaveTrade records a completed round trip.
func (r *DuckDBRepository) SaveTrade(ctx context.Context, trade types.GridTrade) error {
	query, args, err := r.sq.Insert("grid_trades").
		Columns("pair", "buy_order_id", "sell_order_id", "buy_price", "sell_price",
			"quantity", "profit", "profit_percent", "executed_at").
		Values(string(trade.Pair), trade.BuyOrderID, trade.SellOrderID,
			trade.BuyPrice.String(), trade.SellPrice.String(), trade.Quantity.String(),
			trade.Profit.String(), trade.ProfitPercent.String(), trade.ExecutedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trade insert", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeSaveFailed, "failed to save trade", err)
	}

	return nil
}

// GetTrades returns trades for a pair executed at or after since.
func (r *DuckDBRepository) GetTrades(ctx context.Context, pair types.TradingPair, since time.Time) ([]types.GridTrade, error) {
	builder := r.sq.Select("id", "pair", "buy_order_id", "sell_order_id", "buy_price",
		"sell_price", "quantity", "profit", "profit_percent", "executed_at").
		From("grid_trades").
		Where(squirrel.Eq{"pair": string(pair)}).
		OrderBy("executed_at")

	if !since.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"executed_at": since})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trades query", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	trades := make([]types.GridTrade, 0)

	for rows.Next() {
		var (
			trade                                     types.GridTrade
			pairRaw                                   string
			buyPrice, sellPrice, quantity, profit, pct string
		)

		if err := rows.Scan(&trade.ID, &pairRaw, &trade.BuyOrderID, &trade.SellOrderID,
			&buyPrice, &sellPrice, &quantity, &profit, &pct, &trade.ExecutedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade", err)
		}

		trade.Pair = types.TradingPair(pairRaw)
		trade.BuyPrice, _ = decimal.NewFromString(buyPrice)
		trade.SellPrice, _ = decimal.NewFromString(sellPrice)
		trade.Quantity, _ = decimal.NewFromString(quantity)
		trade.Profit, _ = decimal.NewFromString(profit)
		trade.ProfitPercent, _ = decimal.NewFromString(pct)

		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// TotalProfit returns the accumulated profit for a pair.
func (r *DuckDBRepository) TotalProfit(ctx context.Context, pair types.TradingPair) (decimal.Decimal, error) {
	trades, err := r.GetTrades(ctx, pair, time.Time{})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, trade := range trades {
		total = total.Add(trade.Profit)
	}

	return total, nil
}

// HasTradeForSell reports whether a trade exists for the given sell order.
func (r *DuckDBRepository) HasTradeForSell(ctx context.Context, sellOrderID string) (bool, error) {
	query, args, err := r.sq.Select("COUNT(*)").
		From("grid_trades").
		Where(squirrel.Eq{"sell_order_id": sellOrderID}).
		ToSql()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trade lookup", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count trades", err)
	}

	return count > 0, nil
}

// SaveDecision stores a decision for a pair.
func (r *DuckDBRepository) SaveDecision(ctx context.Context, decision types.PairDecision) error {
	timestamp := decision.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	query, args, err := r.sq.Insert("pair_decisions").
		Columns("pair", "decision", "created_at").
		Values(string(decision.Pair), string(decision.Decision), timestamp).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build decision insert", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeSaveFailed, "failed to save decision", err)
	}

	return nil
}

// GetLatestDecision returns the most recent decision for a pair.
func (r *DuckDBRepository) GetLatestDecision(ctx context.Context, pair types.TradingPair) (types.PairDecision, error) {
	query, args, err := r.sq.Select("pair", "decision", "created_at").
		From("pair_decisions").
		Where(squirrel.Eq{"pair": string(pair)}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return types.PairDecision{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build decision query", err)
	}

	var (
		decision types.PairDecision
		pairRaw  string
		raw      string
	)

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&pairRaw, &raw, &decision.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PairDecision{}, errors.Newf(errors.ErrCodeDecisionNotFound, "no decision for pair %s", pair)
		}

		return types.PairDecision{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan decision", err)
	}

	decision.Pair = types.TradingPair(pairRaw)
	decision.Decision = types.Decision(raw)

	return decision, nil
}

// GetLatestDecisions returns the most recent decision per pair.
func (r *DuckDBRepository) GetLatestDecisions(ctx context.Context) ([]types.PairDecision, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pair, decision, created_at FROM (
			SELECT pair, decision, created_at,
				ROW_NUMBER() OVER (PARTITION BY pair ORDER BY created_at DESC) AS rn
			FROM pair_decisions
		) WHERE rn = 1 ORDER BY pair
	`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query decisions", err)
	}
	defer rows.Close()

	decisions := make([]types.PairDecision, 0)

	for rows.Next() {
		var (
			decision types.PairDecision
			pairRaw  string
			raw      string
		)

		if err := rows.Scan(&pairRaw, &raw, &decision.Timestamp); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan decision", err)
		}

		decision.Pair = types.TradingPair(pairRaw)
		decision.Decision = types.Decision(raw)
		decisions = append(decisions, decision)
	}

	return decisions, rows.Err()
}

// Close releases the underlying storage.
func (r *DuckDBRepository) Close() error {
	r.logger.Debug("closing repository", zap.String("backend", "duckdb"))

	return r.db.Close()
}

func (r *DuckDBRepository) configSelect() squirrel.SelectBuilder {
	return r.sq.Select("id", "pair", "total_capital", "grid_levels", "price_range_percent",
		"stop_loss_percent", "enable_stop_loss", "enable_trailing_up",
		"is_running", "last_decision", "status_reason", "updated_at").
		From("grid_configs")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (types.GridConfig, error) {
	var (
		cfg                              types.GridConfig
		pairRaw, capital, rangePct, stop string
		decision                         string
	)

	if err := row.Scan(&cfg.ID, &pairRaw, &capital, &cfg.GridLevels, &rangePct,
		&stop, &cfg.EnableStopLoss, &cfg.EnableTrailingUp,
		&cfg.IsRunning, &decision, &cfg.StatusReason, &cfg.UpdatedAt); err != nil {
		return types.GridConfig{}, err
	}

	cfg.Pair = types.TradingPair(pairRaw)
	cfg.LastDecision = types.Decision(decision)
	cfg.TotalCapital, _ = decimal.NewFromString(capital)
	cfg.PriceRangePercent, _ = decimal.NewFromString(rangePct)
	cfg.StopLossPercent, _ = decimal.NewFromString(stop)

	return cfg, nil
}
