package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	sdec "github.com/shopspring/decimal"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// Numeric columns travel as text so shopspring decimals keep full precision.

func parseNumeric(vals ...*string) ([]sdec.Decimal, error) {
	out := make([]sdec.Decimal, len(vals))
	for i, v := range vals {
		d, err := sdec.NewFromString(*v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// --- Portfolios and holdings ---

const portfolioCols = `id, user_id, name, description, created_at`

func scanPortfolio(row pgx.Row) (ledger.Portfolio, error) {
	var p ledger.Portfolio
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
		return ledger.Portfolio{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) ListPortfolios(ctx context.Context, userID uuid.UUID) ([]ledger.Portfolio, error) {
	rows, err := s.pool.Query(ctx, `select `+portfolioCols+` from portfolios where user_id = $1 order by created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PortfolioByID(ctx context.Context, id uuid.UUID) (ledger.Portfolio, error) {
	return scanPortfolio(s.pool.QueryRow(ctx, `select `+portfolioCols+` from portfolios where id = $1`, id))
}

func (s *Store) CreatePortfolio(ctx context.Context, p ledger.Portfolio) (ledger.Portfolio, error) {
	_, err := s.pool.Exec(ctx, `insert into portfolios (id, user_id, name, description, created_at) values ($1,$2,$3,$4,$5)`,
		p.ID, p.UserID, p.Name, p.Description, p.CreatedAt)
	if err != nil {
		return ledger.Portfolio{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) UpdatePortfolio(ctx context.Context, p ledger.Portfolio) (ledger.Portfolio, error) {
	return scanPortfolio(s.pool.QueryRow(ctx, `
		update portfolios set name = $1, description = $2 where id = $3
		returning `+portfolioCols, p.Name, p.Description, p.ID))
}

// DeletePortfolio removes the portfolio; holdings go with it via ON DELETE CASCADE.
func (s *Store) DeletePortfolio(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from portfolios where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

const holdingCols = `id, portfolio_id, user_id, symbol, quantity::text, buy_price::text, current_price::text, updated_at`

func scanHolding(row pgx.Row) (ledger.Holding, error) {
	var h ledger.Holding
	var qty, buy, cur string
	if err := row.Scan(&h.ID, &h.PortfolioID, &h.UserID, &h.Symbol, &qty, &buy, &cur, &h.UpdatedAt); err != nil {
		return ledger.Holding{}, mapErr(err)
	}
	nums, err := parseNumeric(&qty, &buy, &cur)
	if err != nil {
		return ledger.Holding{}, err
	}
	h.Quantity, h.BuyPrice, h.CurrentPrice = nums[0], nums[1], nums[2]
	return h, nil
}

func (s *Store) ListHoldings(ctx context.Context, portfolioID uuid.UUID) ([]ledger.Holding, error) {
	rows, err := s.pool.Query(ctx, `select `+holdingCols+` from holdings where portfolio_id = $1 order by symbol, id`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) HoldingByID(ctx context.Context, id uuid.UUID) (ledger.Holding, error) {
	return scanHolding(s.pool.QueryRow(ctx, `select `+holdingCols+` from holdings where id = $1`, id))
}

func (s *Store) CreateHolding(ctx context.Context, h ledger.Holding) (ledger.Holding, error) {
	_, err := s.pool.Exec(ctx, `
		insert into holdings (id, portfolio_id, user_id, symbol, quantity, buy_price, current_price, updated_at)
		values ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8)
	`, h.ID, h.PortfolioID, h.UserID, h.Symbol, h.Quantity.String(), h.BuyPrice.String(), h.CurrentPrice.String(), h.UpdatedAt)
	if err != nil {
		// A missing portfolio surfaces as a foreign key violation.
		if mapErr(err) == errs.ErrConflict {
			return ledger.Holding{}, errs.ErrNotFound
		}
		return ledger.Holding{}, mapErr(err)
	}
	return h, nil
}

func (s *Store) UpdateHolding(ctx context.Context, h ledger.Holding) (ledger.Holding, error) {
	return scanHolding(s.pool.QueryRow(ctx, `
		update holdings
		set symbol = $1, quantity = $2::numeric, buy_price = $3::numeric, current_price = $4::numeric, updated_at = $5
		where id = $6
		returning `+holdingCols,
		h.Symbol, h.Quantity.String(), h.BuyPrice.String(), h.CurrentPrice.String(), h.UpdatedAt, h.ID))
}

// UpdateHoldingPrice touches only the price columns so a concurrent edit of
// quantity or buy price is kept.
func (s *Store) UpdateHoldingPrice(ctx context.Context, id uuid.UUID, price sdec.Decimal, at time.Time) error {
	ct, err := s.pool.Exec(ctx, `update holdings set current_price = $1::numeric, updated_at = $2 where id = $3`,
		price.String(), at, id)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteHolding(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from holdings where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) AppendPrice(ctx context.Context, p ledger.PricePoint) error {
	_, err := s.pool.Exec(ctx, `insert into price_history (user_id, symbol, price, at) values ($1,$2,$3::numeric,$4)`,
		p.UserID, p.Symbol, p.Price.String(), p.At)
	return mapErr(err)
}

// PriceHistory returns the newest limit points, oldest first.
func (s *Store) PriceHistory(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]ledger.PricePoint, error) {
	query := `
		select price, at from (
			select price::text as price, at from price_history
			where user_id = $1 and symbol = $2
			order by at desc
			limit $3
		) recent order by at`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, query, userID, symbol, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.PricePoint, 0)
	for rows.Next() {
		var price string
		p := ledger.PricePoint{UserID: userID, Symbol: symbol}
		if err := rows.Scan(&price, &p.At); err != nil {
			return nil, err
		}
		if p.Price, err = sdec.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Goals ---

const goalCols = `id, user_id, name, target_minor, current_minor, deadline, created_at`

func scanGoal(row pgx.Row) (ledger.Goal, error) {
	var g ledger.Goal
	var target, current int64
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &g.Deadline, &g.CreatedAt); err != nil {
		return ledger.Goal{}, mapErr(err)
	}
	g.Target = ledger.AmountFromMinor(target)
	g.Current = ledger.AmountFromMinor(current)
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error) {
	rows, err := s.pool.Query(ctx, `select `+goalCols+` from goals where user_id = $1 order by created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GoalByID(ctx context.Context, id uuid.UUID) (ledger.Goal, error) {
	return scanGoal(s.pool.QueryRow(ctx, `select `+goalCols+` from goals where id = $1`, id))
}

func (s *Store) CreateGoal(ctx context.Context, g ledger.Goal) (ledger.Goal, error) {
	target, err := ledger.Minor(g.Target)
	if err != nil {
		return ledger.Goal{}, err
	}
	current, err := ledger.Minor(g.Current)
	if err != nil {
		return ledger.Goal{}, err
	}
	_, err = s.pool.Exec(ctx, `
		insert into goals (id, user_id, name, target_minor, current_minor, deadline, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, g.ID, g.UserID, g.Name, target, current, g.Deadline, g.CreatedAt)
	if err != nil {
		return ledger.Goal{}, mapErr(err)
	}
	return g, nil
}

// UpdateGoal persists name, target and deadline; progress is untouched.
func (s *Store) UpdateGoal(ctx context.Context, g ledger.Goal) (ledger.Goal, error) {
	target, err := ledger.Minor(g.Target)
	if err != nil {
		return ledger.Goal{}, err
	}
	return scanGoal(s.pool.QueryRow(ctx, `
		update goals set name = $1, target_minor = $2, deadline = $3 where id = $4
		returning `+goalCols, g.Name, target, g.Deadline, g.ID))
}

func (s *Store) DeleteGoal(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from goals where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AddGoalProgress increments progress in a single statement.
func (s *Store) AddGoalProgress(ctx context.Context, id uuid.UUID, delta money.Amount) (ledger.Goal, error) {
	minor, err := ledger.Minor(delta)
	if err != nil {
		return ledger.Goal{}, err
	}
	return scanGoal(s.pool.QueryRow(ctx, `
		update goals set current_minor = current_minor + $1 where id = $2
		returning `+goalCols, minor, id))
}

// --- Chat ---

func (s *Store) AppendMessage(ctx context.Context, m ledger.ChatMessage) error {
	_, err := s.pool.Exec(ctx, `insert into chat_messages (id, user_id, role, content, created_at) values ($1,$2,$3,$4,$5)`,
		m.ID, m.UserID, string(m.Role), m.Content, m.CreatedAt)
	return mapErr(err)
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]ledger.ChatMessage, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		select id, user_id, role, content, created_at from (
			select id, user_id, role, content, created_at, seq from chat_messages
			where user_id = $1 order by seq desc limit $2
		) recent order by seq
	`, userID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.ChatMessage, 0)
	for rows.Next() {
		var m ledger.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = ledger.ChatRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ClearMessages(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `delete from chat_messages where user_id = $1`, userID)
	return err
}
