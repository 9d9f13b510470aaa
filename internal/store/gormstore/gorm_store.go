// Package gormstore 用 Gorm + SQLite 保存图表布局（指标配置集）与交易日志笔记。
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound 记录不存在。
var ErrNotFound = errors.New("record not found")

// LayoutIndicator 布局内一个指标实例的持久化形态；params 保持松散 JSON，
// 读取后由 indicator.DecodeParams 还原为类型化参数。
type LayoutIndicator struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Params  map[string]any `json:"params"`
	Enabled bool           `json:"enabled"`
	Overlay bool           `json:"overlay"`
}

// Layout 一套命名的图表配置：主周期、辅助周期与指标集。
type Layout struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Symbol      string            `json:"symbol"`
	Primary     string            `json:"primary_resolution"`
	Secondaries []string          `json:"secondary_resolutions"`
	Indicators  []LayoutIndicator `json:"indicators"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// JournalNote 挂在某根 K 线上的日志笔记。
type JournalNote struct {
	ID         uint      `json:"id"`
	Symbol     string    `json:"symbol"`
	Resolution string    `json:"resolution"`
	CandleTime int64     `json:"candle_time"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

type layoutModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:128;index"`
	Symbol      string `gorm:"size:32;index"`
	Primary     string `gorm:"size:8"`
	Secondaries datatypes.JSON
	Indicators  datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (layoutModel) TableName() string { return "chart_layouts" }

type journalNoteModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Symbol     string `gorm:"size:32;index:idx_note_candle"`
	Resolution string `gorm:"size:8;index:idx_note_candle"`
	CandleTime int64  `gorm:"index:idx_note_candle"`
	Note       string
	CreatedAt  time.Time
}

func (journalNoteModel) TableName() string { return "journal_notes" }

// Store 布局与日志存储。
type Store struct {
	db *gorm.DB
}

// New 打开（必要时建库）SQLite 存储并完成迁移。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gormstore: 存储路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&layoutModel{}, &journalNoteModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：容忍 HTTP 层的少量并发读，同时压低锁竞争
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveLayout 新建或覆盖布局；空 ID 自动分配。
func (s *Store) SaveLayout(ctx context.Context, layout Layout) (Layout, error) {
	if strings.TrimSpace(layout.Name) == "" {
		return Layout{}, fmt.Errorf("gormstore: 布局名不能为空")
	}
	if layout.ID == "" {
		layout.ID = uuid.NewString()
	}
	secondaries, err := json.Marshal(layout.Secondaries)
	if err != nil {
		return Layout{}, err
	}
	indicators, err := json.Marshal(layout.Indicators)
	if err != nil {
		return Layout{}, err
	}
	model := layoutModel{
		ID:          layout.ID,
		Name:        layout.Name,
		Symbol:      strings.ToUpper(layout.Symbol),
		Primary:     layout.Primary,
		Secondaries: datatypes.JSON(secondaries),
		Indicators:  datatypes.JSON(indicators),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
	if err != nil {
		return Layout{}, err
	}
	return s.GetLayout(ctx, layout.ID)
}

func (s *Store) GetLayout(ctx context.Context, id string) (Layout, error) {
	var model layoutModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Layout{}, ErrNotFound
	}
	if err != nil {
		return Layout{}, err
	}
	return layoutFromModel(model)
}

func (s *Store) ListLayouts(ctx context.Context, symbol string) ([]Layout, error) {
	q := s.db.WithContext(ctx).Model(&layoutModel{}).Order("updated_at DESC")
	if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var models []layoutModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Layout, 0, len(models))
	for _, m := range models {
		layout, err := layoutFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, layout)
	}
	return out, nil
}

func (s *Store) DeleteLayout(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&layoutModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func layoutFromModel(m layoutModel) (Layout, error) {
	out := Layout{
		ID:        m.ID,
		Name:      m.Name,
		Symbol:    m.Symbol,
		Primary:   m.Primary,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Secondaries) > 0 {
		if err := json.Unmarshal(m.Secondaries, &out.Secondaries); err != nil {
			return Layout{}, fmt.Errorf("gormstore: 布局 %s 辅助周期损坏: %w", m.ID, err)
		}
	}
	if len(m.Indicators) > 0 {
		if err := json.Unmarshal(m.Indicators, &out.Indicators); err != nil {
			return Layout{}, fmt.Errorf("gormstore: 布局 %s 指标配置损坏: %w", m.ID, err)
		}
	}
	return out, nil
}

// AddJournalNote 追加一条日志笔记。
func (s *Store) AddJournalNote(ctx context.Context, note JournalNote) (JournalNote, error) {
	if strings.TrimSpace(note.Note) == "" {
		return JournalNote{}, fmt.Errorf("gormstore: 笔记内容不能为空")
	}
	model := journalNoteModel{
		Symbol:     strings.ToUpper(note.Symbol),
		Resolution: note.Resolution,
		CandleTime: note.CandleTime,
		Note:       note.Note,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return JournalNote{}, err
	}
	return JournalNote{
		ID:         model.ID,
		Symbol:     model.Symbol,
		Resolution: model.Resolution,
		CandleTime: model.CandleTime,
		Note:       model.Note,
		CreatedAt:  model.CreatedAt,
	}, nil
}

func (s *Store) ListJournalNotes(ctx context.Context, symbol string, limit int) ([]JournalNote, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&journalNoteModel{}).
		Order("candle_time DESC").Limit(limit)
	if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var models []journalNoteModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]JournalNote, len(models))
	for i, m := range models {
		out[i] = JournalNote{
			ID:         m.ID,
			Symbol:     m.Symbol,
			Resolution: m.Resolution,
			CandleTime: m.CandleTime,
			Note:       m.Note,
			CreatedAt:  m.CreatedAt,
		}
	}
	return out, nil
}
