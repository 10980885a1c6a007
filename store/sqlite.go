package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrVersionConflict 带版本写入时发现状态已被其他调用更新
var ErrVersionConflict = errors.New("state version conflict")

// Store 动态状态持久化接口
// Read 返回 (状态, 版本)，键不存在时返回 (nil, 0, nil)
// 解码失败时返回 (nil, 当前版本, 错误)，调用方退回默认状态但保留版本号
// Write 只在当前版本等于 expectVersion 时生效（expectVersion 0 表示期望键不存在），
// 否则返回 ErrVersionConflict —— 并发的实盘激活靠这个版本检查避免静默丢失更新
type Store interface {
	Read(key string) (map[string]any, int64, error)
	Write(key string, state map[string]any, expectVersion int64) error
}

// SQLiteStore 基于 sqlite 的状态存储
type SQLiteStore struct {
	db *sql.DB
}

const createStateTable = `
CREATE TABLE IF NOT EXISTS strategy_state (
	key        TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	payload    TEXT    NOT NULL,
	updated_at TEXT    NOT NULL
)`

// NewSQLiteStore 打开（必要时创建）状态数据库
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(createStateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Read 读取并解码动态状态
// 解码失败按数据错误上报，调用方应退回全新的默认状态
func (s *SQLiteStore) Read(key string) (map[string]any, int64, error) {
	var (
		version int64
		payload string
	)
	err := s.db.QueryRow(
		`SELECT version, payload FROM strategy_state WHERE key = ?`, key,
	).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read state %q: %w", key, err)
	}

	var encoded map[string]any
	if err := json.Unmarshal([]byte(payload), &encoded); err != nil {
		return nil, version, fmt.Errorf("unmarshal state %q: %w", key, err)
	}
	state, err := DecodeState(encoded)
	if err != nil {
		return nil, version, fmt.Errorf("decode state %q: %w", key, err)
	}
	return state, version, nil
}

// Write 带版本条件写入
func (s *SQLiteStore) Write(key string, state map[string]any, expectVersion int64) error {
	encoded, err := EncodeState(state)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", key, err)
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("marshal state %q: %w", key, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	var res sql.Result
	if expectVersion == 0 {
		res, err = s.db.Exec(
			`INSERT INTO strategy_state (key, version, payload, updated_at)
			 VALUES (?, 1, ?, ?) ON CONFLICT(key) DO NOTHING`,
			key, string(payload), now,
		)
	} else {
		res, err = s.db.Exec(
			`UPDATE strategy_state SET version = ?, payload = ?, updated_at = ?
			 WHERE key = ? AND version = ?`,
			expectVersion+1, string(payload), now, key, expectVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("write state %q: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write state %q: %w", key, err)
	}
	if affected == 0 {
		logrus.WithField("key", key).Warn("state version conflict, write rejected")
		return ErrVersionConflict
	}
	return nil
}

// MemoryStore 内存实现，测试和单进程场景用
type MemoryStore struct {
	entries map[string]memoryEntry
}

type memoryEntry struct {
	state   map[string]any
	version int64
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

// Read 实现 Store
// 经过和 SQLite 相同的编解码路径，保证两种实现的序列化语义一致
func (s *MemoryStore) Read(key string) (map[string]any, int64, error) {
	e, ok := s.entries[key]
	if !ok {
		return nil, 0, nil
	}
	encoded, err := EncodeState(e.state)
	if err != nil {
		return nil, 0, err
	}
	state, err := DecodeState(encoded)
	if err != nil {
		return nil, 0, err
	}
	return state, e.version, nil
}

// Write 实现 Store
func (s *MemoryStore) Write(key string, state map[string]any, expectVersion int64) error {
	current := int64(0)
	if e, ok := s.entries[key]; ok {
		current = e.version
	}
	if current != expectVersion {
		return ErrVersionConflict
	}
	copied := make(map[string]any, len(state))
	for k, v := range state {
		copied[k] = v
	}
	s.entries[key] = memoryEntry{state: copied, version: expectVersion + 1}
	return nil
}
