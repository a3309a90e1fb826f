package journal

import (
	"database/sql"
	"errors"
	"fmt"
)

const decisionCols = `id, session_id, time, iteration, kind, symbol, side, quantity, price, allowed,
	code, reason, status, order_id, error, daily_pnl, open_positions`

// ListDecisions returns decisions oldest first. An empty sessionID lists
// every session; limit <= 0 means no limit.
func (s *Store) ListDecisions(sessionID string, limit int) ([]DecisionRecord, error) {
	q := `SELECT ` + decisionCols + ` FROM decisions`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY time ASC, id ASC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(rebind(s.driver, q), args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(
			&d.ID, &d.SessionID, &d.Time, &d.Iteration, &d.Kind, &d.Symbol, &d.Side, &d.Quantity, &d.Price, &d.Allowed,
			&d.Code, &d.Reason, &d.Status, &d.OrderID, &d.Error, &d.DailyPnL, &d.OpenPositions,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListTrades returns a session's fills oldest first.
func (s *Store) ListTrades(sessionID string) ([]TradeRecord, error) {
	rows, err := s.db.Query(rebind(s.driver, `
		SELECT trade_id, session_id, symbol, side, quantity, price, realized, position_qty, time
		FROM trades
		WHERE session_id = ?
		ORDER BY time ASC, trade_id ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(
			&t.TradeID, &t.SessionID, &t.Symbol, &t.Side, &t.Quantity,
			&t.Price, &t.Realized, &t.PositionQty, &t.Time,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetSession returns one session summary by id.
func (s *Store) GetSession(sessionID string) (SessionRecord, error) {
	var r SessionRecord
	row := s.db.QueryRow(rebind(s.driver, `
		SELECT session_id, trade_date, started, ended, stop_reason, iterations, realized_pnl, daily_pnl, fills, summary
		FROM sessions
		WHERE session_id = ?`), sessionID)

	err := row.Scan(
		&r.SessionID, &r.TradeDate, &r.Started, &r.Ended, &r.StopReason,
		&r.Iterations, &r.RealizedPnL, &r.DailyPnL, &r.Fills, &r.Summary,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
		}
		return SessionRecord{}, err
	}
	return r, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession() (SessionRecord, error) {
	var id string
	err := s.db.QueryRow(`SELECT session_id FROM sessions ORDER BY started DESC LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, fmt.Errorf("latest session: %w", ErrNotFound)
		}
		return SessionRecord{}, err
	}
	return s.GetSession(id)
}
