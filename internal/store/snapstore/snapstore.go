// Package snapstore 把 K 线缓存落到本地 SQLite，进程重启后可直接回灌缓存，
// 省掉冷启动时的整批网络拉取。
package snapstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chartcore/internal/market"
)

// Store K 线快照存储。
type Store struct {
	db *sql.DB
}

// Open 打开（必要时建库）快照库。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("snapstore: 存储路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS candle_snapshots (
    symbol     TEXT    NOT NULL,
    resolution TEXT    NOT NULL,
    time       INTEGER NOT NULL,
    open       REAL    NOT NULL,
    high       REAL    NOT NULL,
    low        REAL    NOT NULL,
    close      REAL    NOT NULL,
    volume     REAL    NOT NULL,
    PRIMARY KEY (symbol, resolution, time)
);
CREATE TABLE IF NOT EXISTS snapshot_meta (
    symbol     TEXT    NOT NULL,
    resolution TEXT    NOT NULL,
    fetched_at INTEGER NOT NULL,
    PRIMARY KEY (symbol, resolution)
);`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Put 整批替换一个 (symbol, resolution) 的快照并记录抓取时间。
func (s *Store) Put(ctx context.Context, symbol string, res market.Resolution, candles market.Candles, fetchedAt time.Time) error {
	symbol = strings.ToUpper(symbol)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM candle_snapshots WHERE symbol = ? AND resolution = ?`,
		symbol, string(res)); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candle_snapshots (symbol, resolution, time, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(res),
			c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (symbol, resolution, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT (symbol, resolution) DO UPDATE SET fetched_at = excluded.fetched_at`,
		symbol, string(res), fetchedAt.Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

// Get 读取一个快照；second 返回值表明是否存在。
func (s *Store) Get(ctx context.Context, symbol string, res market.Resolution) (market.Candles, time.Time, bool, error) {
	symbol = strings.ToUpper(symbol)
	var fetchedUnix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM snapshot_meta WHERE symbol = ? AND resolution = ?`,
		symbol, string(res)).Scan(&fetchedUnix)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT time, open, high, low, close, volume FROM candle_snapshots
		 WHERE symbol = ? AND resolution = ? ORDER BY time ASC`,
		symbol, string(res))
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer rows.Close()

	var candles market.Candles
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, time.Time{}, false, err
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, false, err
	}
	return candles, time.Unix(fetchedUnix, 0), true, nil
}

// Pairs 列出库中所有 (symbol, resolution) 组合，供启动回灌时遍历。
func (s *Store) Pairs(ctx context.Context) (map[string][]market.Resolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, resolution FROM snapshot_meta ORDER BY symbol, resolution`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]market.Resolution)
	for rows.Next() {
		var symbol, res string
		if err := rows.Scan(&symbol, &res); err != nil {
			return nil, err
		}
		out[symbol] = append(out[symbol], market.Resolution(res))
	}
	return out, rows.Err()
}
