package journal

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	iteration INTEGER NOT NULL,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price REAL NOT NULL,
	allowed BOOLEAN NOT NULL,
	code TEXT NOT NULL,
	reason TEXT NOT NULL,
	status TEXT NOT NULL,
	order_id TEXT NOT NULL,
	error TEXT NOT NULL,
	daily_pnl REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id, time);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price REAL NOT NULL,
	realized REAL NOT NULL,
	position_qty INTEGER NOT NULL,
	time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ban_list (
	symbol TEXT NOT NULL,
	ban_date TEXT NOT NULL,
	PRIMARY KEY (symbol, ban_date)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	trade_date TEXT NOT NULL,
	started DATETIME NOT NULL,
	ended DATETIME NOT NULL,
	stop_reason TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	realized_pnl REAL NOT NULL,
	daily_pnl REAL NOT NULL,
	fills INTEGER NOT NULL,
	summary TEXT NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	iteration INTEGER NOT NULL,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	allowed BOOLEAN NOT NULL,
	code TEXT NOT NULL,
	reason TEXT NOT NULL,
	status TEXT NOT NULL,
	order_id TEXT NOT NULL,
	error TEXT NOT NULL,
	daily_pnl DOUBLE PRECISION NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id, time);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	realized DOUBLE PRECISION NOT NULL,
	position_qty INTEGER NOT NULL,
	time TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ban_list (
	symbol TEXT NOT NULL,
	ban_date TEXT NOT NULL,
	PRIMARY KEY (symbol, ban_date)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	trade_date TEXT NOT NULL,
	started TIMESTAMPTZ NOT NULL,
	ended TIMESTAMPTZ NOT NULL,
	stop_reason TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	realized_pnl DOUBLE PRECISION NOT NULL,
	daily_pnl DOUBLE PRECISION NOT NULL,
	fills INTEGER NOT NULL,
	summary TEXT NOT NULL
);
`
