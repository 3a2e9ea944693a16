// internal/journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS order_results (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	intent_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	amount TEXT NOT NULL,
	amount_kind TEXT NOT NULL,
	reason TEXT NOT NULL,
	order_id TEXT NOT NULL,
	status TEXT NOT NULL,
	filled_qty TEXT NOT NULL,
	filled_price TEXT NOT NULL,
	error_kind TEXT NOT NULL,
	error_message TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	verified INTEGER NOT NULL,
	intent_created_at TEXT NOT NULL,
	completed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_results_account ON order_results(account_id, completed_at);
CREATE INDEX IF NOT EXISTS idx_order_results_status ON order_results(status);
`
