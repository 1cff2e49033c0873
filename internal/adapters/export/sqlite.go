package export

// sqlite.go — persistencia append-only de los cinco streams de registro.
//
// Cada stream es una tabla con las mismas columnas que domain.Stream.Columns,
// más un id autoincremental. Nunca se hace UPDATE ni DELETE: el ledger emite
// filas y aquí solo se insertan. Una base SQLite por simulación es suficiente
// y consultable con cualquier herramienta estándar.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS open_positions (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at        TEXT NOT NULL,
    position_id        TEXT NOT NULL,
    asset_id           TEXT NOT NULL,
    side               TEXT NOT NULL,
    entry_odds         REAL NOT NULL,
    current_odds       REAL NOT NULL,
    target_odds        REAL NOT NULL,
    stop_odds          REAL NOT NULL,
    size_usd           REAL NOT NULL,
    unrealized_pnl_usd REAL NOT NULL,
    confidence         INTEGER NOT NULL,
    rationale          TEXT
);

CREATE TABLE IF NOT EXISTS closed_positions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    closed_at        TEXT NOT NULL,
    position_id      TEXT NOT NULL,
    asset_id         TEXT NOT NULL,
    side             TEXT NOT NULL,
    entry_odds       REAL NOT NULL,
    exit_odds        REAL NOT NULL,
    target_odds      REAL NOT NULL,
    stop_odds        REAL NOT NULL,
    size_usd         REAL NOT NULL,
    realized_pnl_usd REAL NOT NULL,
    close_reason     TEXT NOT NULL,
    opened_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pnl_reports (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at        TEXT NOT NULL,
    open_count         INTEGER NOT NULL,
    realized_pnl_usd   REAL NOT NULL,
    unrealized_pnl_usd REAL NOT NULL,
    total_pnl_usd      REAL NOT NULL,
    success_rate       REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS signal_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TEXT NOT NULL,
    asset_id    TEXT NOT NULL,
    direction   TEXT NOT NULL,
    confidence  INTEGER NOT NULL,
    entry_odds  REAL NOT NULL,
    target_odds REAL NOT NULL,
    stop_odds   REAL NOT NULL,
    size_usd    REAL NOT NULL,
    outcome     TEXT NOT NULL,
    reason      TEXT,
    position_id TEXT,
    rationale   TEXT
);

CREATE TABLE IF NOT EXISTS trading_summary (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at        TEXT NOT NULL,
    cycles             INTEGER NOT NULL,
    trades_attempted   INTEGER NOT NULL,
    trades_admitted    INTEGER NOT NULL,
    trades_rejected    INTEGER NOT NULL,
    open_count         INTEGER NOT NULL,
    closed_count       INTEGER NOT NULL,
    realized_pnl_usd   REAL NOT NULL,
    unrealized_pnl_usd REAL NOT NULL,
    total_pnl_usd      REAL NOT NULL,
    success_rate       REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_open_at    ON open_positions(recorded_at);
CREATE INDEX IF NOT EXISTS idx_closed_at  ON closed_positions(closed_at);
CREATE INDEX IF NOT EXISTS idx_pnl_at     ON pnl_reports(recorded_at);
CREATE INDEX IF NOT EXISTS idx_signal_at  ON signal_history(recorded_at);
CREATE INDEX IF NOT EXISTS idx_signal_pos ON signal_history(position_id);
`

// SQLiteSink implementa ports.RecordSink usando SQLite (pure Go, sin CGo).
type SQLiteSink struct {
	db        *sql.DB
	insertSQL map[domain.Stream]string
}

// NewSQLiteSink abre (o crea) la base de datos en la ruta dada y aplica
// el schema. Las sentencias INSERT por stream se generan una sola vez a
// partir de las columnas del stream.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("export.NewSQLiteSink: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("export.NewSQLiteSink: apply schema: %w", err)
	}

	inserts := make(map[domain.Stream]string, len(domain.Streams()))
	for _, stream := range domain.Streams() {
		cols := stream.Columns()
		placeholders := strings.Repeat("?, ", len(cols))
		inserts[stream] = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			stream, strings.Join(cols, ", "), strings.TrimSuffix(placeholders, ", "))
	}

	return &SQLiteSink{db: db, insertSQL: inserts}, nil
}

// Record inserta una fila en la tabla del stream. La aridad de la fila
// debe coincidir con las columnas del stream.
func (s *SQLiteSink) Record(ctx context.Context, stream domain.Stream, row domain.Row) error {
	insert, ok := s.insertSQL[stream]
	if !ok {
		return fmt.Errorf("export.Record: unknown stream %q", stream)
	}
	if got, want := len(row), len(stream.Columns()); got != want {
		return fmt.Errorf("export.Record: %s row has %d values, want %d", stream, got, want)
	}
	if _, err := s.db.ExecContext(ctx, insert, []any(row)...); err != nil {
		return fmt.Errorf("export.Record: insert %s: %w", stream, err)
	}
	return nil
}

// PnLReport es una fila de pnl_reports leída de vuelta para el modo
// -report.
type PnLReport struct {
	RecordedAt       time.Time
	OpenCount        int
	RealizedPnLUSD   float64
	UnrealizedPnLUSD float64
	TotalPnLUSD      float64
	SuccessRate      float64
}

// GetPnLReports devuelve los informes de PnL cuyo recorded_at cae en el
// rango dado, en orden cronológico.
func (s *SQLiteSink) GetPnLReports(ctx context.Context, from, to time.Time) ([]PnLReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recorded_at, open_count, realized_pnl_usd,
		       unrealized_pnl_usd, total_pnl_usd, success_rate
		FROM pnl_reports
		WHERE recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at ASC
	`, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("export.GetPnLReports: query: %w", err)
	}
	defer rows.Close()

	var reports []PnLReport
	for rows.Next() {
		var r PnLReport
		var at string
		if err := rows.Scan(&at, &r.OpenCount, &r.RealizedPnLUSD,
			&r.UnrealizedPnLUSD, &r.TotalPnLUSD, &r.SuccessRate); err != nil {
			return nil, fmt.Errorf("export.GetPnLReports: scan row: %w", err)
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339, at)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
