// Package catalog 用 SQLite 记录加载过的检查点和每次推理。
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iabetor/melgen/internal/logger"
)

// Checkpoint 是一条检查点记录。
type Checkpoint struct {
	ID           int64
	Path         string
	Digest       string
	Backend      string
	NMelChannels int
	SamplingRate int
	Charset      string
	LoadedAt     time.Time
}

// Run 是一次推理记录。
type Run struct {
	ID           string
	CheckpointID int64
	Device       string
	Symbols      int
	Frames       int
	Elapsed      time.Duration
	CreatedAt    time.Time
}

// Catalog 是检查点目录。
type Catalog struct {
	db   *sql.DB
	path string
}

// Open 打开或创建 dbPath 处的目录数据库。dbPath 为空时使用 ~/.melgen/catalog.db。
func Open(dbPath string) (*Catalog, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".melgen", "catalog.db")
		} else {
			dbPath = "./melgen-catalog.db"
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建目录数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开目录数据库失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用外键约束失败: %w", err)
	}

	c := &Catalog{db: db, path: dbPath}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("[catalog] 目录数据库已打开: %s", dbPath)
	return c, nil
}

func (c *Catalog) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			digest TEXT NOT NULL UNIQUE,
			backend TEXT NOT NULL,
			n_mel_channels INTEGER NOT NULL,
			sampling_rate INTEGER NOT NULL,
			charset TEXT NOT NULL DEFAULT '',
			loaded_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			checkpoint_id INTEGER NOT NULL REFERENCES checkpoints(id) ON DELETE CASCADE,
			device TEXT NOT NULL,
			symbols INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`)
	if err != nil {
		return fmt.Errorf("创建数据表失败: %w", err)
	}
	return nil
}

// Path 返回数据库文件路径。
func (c *Catalog) Path() string { return c.path }

// RecordCheckpoint 按 digest 插入或更新检查点记录，返回记录 ID。
func (c *Catalog) RecordCheckpoint(ck Checkpoint) (int64, error) {
	if ck.LoadedAt.IsZero() {
		ck.LoadedAt = time.Now()
	}
	_, err := c.db.Exec(`
		INSERT INTO checkpoints (path, digest, backend, n_mel_channels, sampling_rate, charset, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET path = excluded.path, loaded_at = excluded.loaded_at`,
		ck.Path, ck.Digest, ck.Backend, ck.NMelChannels, ck.SamplingRate, ck.Charset, ck.LoadedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("记录检查点失败: %w", err)
	}

	var id int64
	if err := c.db.QueryRow("SELECT id FROM checkpoints WHERE digest = ?", ck.Digest).Scan(&id); err != nil {
		return 0, fmt.Errorf("查询检查点 ID 失败: %w", err)
	}
	return id, nil
}

// GetCheckpoint 按 ID 查询检查点，不存在时返回 (nil, nil)。
func (c *Catalog) GetCheckpoint(id int64) (*Checkpoint, error) {
	ck := &Checkpoint{}
	err := c.db.QueryRow(`
		SELECT id, path, digest, backend, n_mel_channels, sampling_rate, charset, loaded_at
		FROM checkpoints WHERE id = ?`, id).
		Scan(&ck.ID, &ck.Path, &ck.Digest, &ck.Backend, &ck.NMelChannels, &ck.SamplingRate, &ck.Charset, &ck.LoadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询检查点失败: %w", err)
	}
	return ck, nil
}

// RecordRun 记录一次推理，返回生成的运行 ID。
func (c *Catalog) RecordRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := c.db.Exec(`
		INSERT INTO runs (id, checkpoint_id, device, symbols, frames, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CheckpointID, r.Device, r.Symbols, r.Frames, r.Elapsed.Milliseconds(), r.CreatedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("记录推理失败: %w", err)
	}
	return r.ID, nil
}

// RecentRuns 按时间倒序返回最近 limit 次推理。
func (c *Catalog) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.Query(`
		SELECT id, checkpoint_id, device, symbols, frames, elapsed_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询推理记录失败: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.ID, &r.CheckpointID, &r.Device, &r.Symbols, &r.Frames, &ms, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取推理记录失败: %w", err)
		}
		r.Elapsed = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close 关闭数据库。
func (c *Catalog) Close() error {
	return c.db.Close()
}
