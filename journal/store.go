package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists decisions, trades, sessions and the ban list in SQLite or
// Postgres. Queries are written with ? placeholders and rebound per driver.
type Store struct {
	db     *sql.DB
	driver string
}

func NewSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One writer at a time; sqlite serialises anyway.
	db.SetMaxOpenConns(1)
	return initStore(db, "sqlite3", sqliteSchema)
}

func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return initStore(db, "postgres", postgresSchema)
}

// Open picks the backend by driver name: sqlite, postgres, or none.
func Open(driver, target string) (Backend, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return NewSQLite(target)
	case "postgres", "postgresql":
		return NewPostgres(target)
	case "", "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
}

func initStore(db *sql.DB, driver, schema string) (*Store, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

// rebind rewrites ? placeholders to $1..$n for Postgres.
func rebind(driver, q string) string {
	if driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(q string, args ...any) error {
	_, err := s.db.Exec(rebind(s.driver, q), args...)
	return err
}

func (s *Store) RecordDecision(d DecisionRecord) error {
	err := s.exec(`
		INSERT INTO decisions
		(id, session_id, time, iteration, kind, symbol, side, quantity, price, allowed,
		 code, reason, status, order_id, error, daily_pnl, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.Time.UTC(), d.Iteration, d.Kind, d.Symbol, d.Side, d.Quantity, d.Price, d.Allowed,
		d.Code, d.Reason, d.Status, d.OrderID, d.Error, d.DailyPnL, d.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("record decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) RecordTrade(t TradeRecord) error {
	err := s.exec(`
		INSERT INTO trades
		(trade_id, session_id, symbol, side, quantity, price, realized, position_qty, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.SessionID, t.Symbol, t.Side, t.Quantity, t.Price, t.Realized, t.PositionQty, t.Time.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (s *Store) RecordSession(r SessionRecord) error {
	err := s.exec(`
		INSERT INTO sessions
		(session_id, trade_date, started, ended, stop_reason, iterations, realized_pnl, daily_pnl, fills, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			ended = excluded.ended,
			stop_reason = excluded.stop_reason,
			iterations = excluded.iterations,
			realized_pnl = excluded.realized_pnl,
			daily_pnl = excluded.daily_pnl,
			fills = excluded.fills,
			summary = excluded.summary`,
		r.SessionID, r.TradeDate, r.Started.UTC(), r.Ended.UTC(), r.StopReason, r.Iterations,
		r.RealizedPnL, r.DailyPnL, r.Fills, r.Summary,
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", r.SessionID, err)
	}
	return nil
}

func (s *Store) AddBan(symbol string, day time.Time) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errors.New("add ban: empty symbol")
	}
	err := s.exec(`
		INSERT INTO ban_list (symbol, ban_date) VALUES (?, ?)
		ON CONFLICT (symbol, ban_date) DO NOTHING`, symbol, BanDate(day))
	if err != nil {
		return fmt.Errorf("add ban %s: %w", symbol, err)
	}
	return nil
}

func (s *Store) BannedOn(day time.Time) ([]string, error) {
	rows, err := s.db.Query(rebind(s.driver, `
		SELECT symbol FROM ban_list WHERE ban_date = ? ORDER BY symbol`), BanDate(day))
	if err != nil {
		return nil, fmt.Errorf("ban list: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
