// Package session SQLite 令牌存储适配器。
// 使用 modernc.org/sqlite（纯 Go 驱动），令牌在进程重启后保留。
package session

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"trading-terminal-core/internal/util/timeutil"
)

// SQLiteStore SQLite 令牌存储
// 单行表模式：id 固定为 1，Save 为 upsert
type SQLiteStore struct {
	// db 数据库连接
	db *sql.DB
}

// NewSQLiteStore 打开（必要时创建）令牌存储
// 参数 path: SQLite 文件路径
// 返回: 存储实例和可能的错误
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开会话存储失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接会话存储失败: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS terminal_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化会话表失败: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save 保存令牌（upsert）
func (s *SQLiteStore) Save(token string) error {
	query := `
		INSERT INTO terminal_session (id, token, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`
	if _, err := s.db.Exec(query, token, timeutil.NowMs()); err != nil {
		return fmt.Errorf("保存令牌失败: %w", err)
	}
	return nil
}

// Load 读取令牌
// 不存在时返回空串且无错误
func (s *SQLiteStore) Load() (string, error) {
	var token string
	err := s.db.QueryRow("SELECT token FROM terminal_session WHERE id = 1").Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取令牌失败: %w", err)
	}
	return token, nil
}

// Clear 清除令牌
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM terminal_session WHERE id = 1"); err != nil {
		return fmt.Errorf("清除令牌失败: %w", err)
	}
	return nil
}

// Close 关闭存储
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
