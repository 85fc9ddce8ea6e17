// Package candlestore 将历史蜡烛归档到本地 SQLite
package candlestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/gofx/fxcm/types"
)

type Store struct {
	db *sql.DB
}

// Open 打开（或创建）数据库并建表；path 为 ":memory:" 时使用内存库
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("candlestore: db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS candles (
  instrument TEXT NOT NULL,
  period TEXT NOT NULL,
  ts INTEGER NOT NULL,
  row_json TEXT NOT NULL,
  saved_at TEXT NOT NULL,
  PRIMARY KEY (instrument, period, ts)
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Save 按 (instrument, period, ts) 覆盖写入，返回写入行数
func (s *Store) Save(ctx context.Context, instrument, period string, result *types.CandleResult) (int, error) {
	if result == nil || len(result.Candles) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO candles (instrument, period, ts, row_json, saved_at)
VALUES (?,?,?,?,?)
ON CONFLICT(instrument, period, ts) DO UPDATE SET row_json=excluded.row_json, saved_at=excluded.saved_at
`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Format(time.RFC3339Nano)
	for _, c := range result.Candles {
		row, err := json.Marshal(c.Values(false))
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, instrument, period, c.Timestamp, string(row), now); err != nil {
			return 0, fmt.Errorf("insert candle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(result.Candles), nil
}

// Load 读取最近 limit 根蜡烛，按时间升序返回；limit <= 0 表示全部
func (s *Store) Load(ctx context.Context, instrument, period string, limit int) ([]types.Candle, error) {
	query := `
SELECT row_json FROM candles
WHERE instrument=? AND period=?
ORDER BY ts DESC`
	args := []any{instrument, period}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []types.Candle
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var values []float64
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("decode candle row: %w", err)
		}
		c, err := types.CandleFromValues(values)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
