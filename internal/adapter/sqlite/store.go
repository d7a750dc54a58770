package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/neo-radar-service/internal/domain"
	"github.com/couchcryptid/neo-radar-service/internal/observability"
	"gorm.io/datatypes"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// upsertBatchSize keeps multi-row inserts under SQLite's bound-variable limit.
const upsertBatchSize = 200

// neoRow is the persisted projection of domain.NearEarthObject.
type neoRow struct {
	ID                   string         `gorm:"column:id;primaryKey"`
	Name                 string         `gorm:"column:name;not null"`
	CloseApproachDate    string         `gorm:"column:close_approach_date;not null;index:idx_neo_close_approach_date"`
	AbsoluteMagnitude    float64        `gorm:"column:absolute_magnitude"`
	EstimatedDiameterKm  float64        `gorm:"column:estimated_diameter_km"`
	RelativeVelocityKmS  float64        `gorm:"column:relative_velocity_km_s"`
	MissDistanceAU       float64        `gorm:"column:miss_distance_au"`
	PotentiallyHazardous bool           `gorm:"column:potentially_hazardous"`
	Payload              datatypes.JSON `gorm:"column:payload"`
	UpdatedAt            time.Time      `gorm:"column:updated_at"`
}

func (neoRow) TableName() string { return "near_earth_objects" }

func toRow(n domain.NearEarthObject) neoRow {
	return neoRow{
		ID:                   n.ID,
		Name:                 n.Name,
		CloseApproachDate:    n.CloseApproachDate,
		AbsoluteMagnitude:    n.AbsoluteMagnitude,
		EstimatedDiameterKm:  n.EstimatedDiameterKm,
		RelativeVelocityKmS:  n.RelativeVelocityKmS,
		MissDistanceAU:       n.MissDistanceAU,
		PotentiallyHazardous: n.PotentiallyHazardous,
		Payload:              datatypes.JSON(n.RawPayload),
	}
}

func (r neoRow) toDomain() domain.NearEarthObject {
	return domain.NearEarthObject{
		ID:                   r.ID,
		Name:                 r.Name,
		CloseApproachDate:    r.CloseApproachDate,
		AbsoluteMagnitude:    r.AbsoluteMagnitude,
		EstimatedDiameterKm:  r.EstimatedDiameterKm,
		RelativeVelocityKmS:  r.RelativeVelocityKmS,
		MissDistanceAU:       r.MissDistanceAU,
		PotentiallyHazardous: r.PotentiallyHazardous,
		RawPayload:           []byte(r.Payload),
	}
}

// Options configures Open.
type Options struct {
	Path    string
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Store is the durable NEO cache. Writes are serialized; reads and
// observations run concurrently with them.
type Store struct {
	db      *gorm.DB
	metrics *observability.Metrics
	logger  *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	observers map[*Observation]struct{}
	closed    bool
}

// Open opens (creating if needed) the SQLite cache at opts.Path and migrates
// the schema. Construct one Store per process and share it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	if err := ensureDir(opts.Path); err != nil {
		return nil, fmt.Errorf("sqlite: create database directory: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(opts.Path))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", opts.Path, err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&neoRow{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	log.Info("neo cache opened", "path", opts.Path)
	return &Store{
		db:        db,
		metrics:   opts.Metrics,
		logger:    log,
		observers: make(map[*Observation]struct{}),
	}, nil
}

// Upsert writes every record in one transaction, replacing rows that share an
// id. Either all records are committed or none are. Within a batch the last
// occurrence of an id wins. Live observations are signalled after the commit.
func (s *Store) Upsert(ctx context.Context, neos []domain.NearEarthObject) error {
	if len(neos) == 0 {
		return nil
	}
	rows := dedupe(neos)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, upsertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("upsert %d records: %w: %w", len(rows), domain.ErrUpsertFailed, err)
	}

	if s.metrics != nil {
		s.metrics.RecordsUpserted.Add(float64(len(rows)))
		if n, err := s.Count(ctx); err == nil {
			s.metrics.CachedObjects.Set(float64(n))
		}
	}
	s.notify()
	return nil
}

// List returns the rows with close_approach_date >= from, ascending by date
// and then by id.
func (s *Store) List(ctx context.Context, from string) ([]domain.NearEarthObject, error) {
	var rows []neoRow
	err := s.db.WithContext(ctx).
		Where("close_approach_date >= ?", from).
		Order("close_approach_date ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list records from %s: %w", from, err)
	}

	out := make([]domain.NearEarthObject, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// Get returns the row for id.
func (s *Store) Get(ctx context.Context, id string) (domain.NearEarthObject, bool, error) {
	var row neoRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return domain.NearEarthObject{}, false, fmt.Errorf("get record %s: %w", id, err)
	}
	if row.ID == "" {
		return domain.NearEarthObject{}, false, nil
	}
	return row.toDomain(), true, nil
}

// Count returns the number of cached rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&neoRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close ends every live observation and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	observers := make([]*Observation, 0, len(s.observers))
	for o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.Close()
	}
	for _, o := range observers {
		<-o.stopped
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dedupe(neos []domain.NearEarthObject) []neoRow {
	index := make(map[string]int, len(neos))
	rows := make([]neoRow, 0, len(neos))
	for _, n := range neos {
		if i, ok := index[n.ID]; ok {
			rows[i] = toRow(n)
			continue
		}
		index[n.ID] = len(rows)
		rows = append(rows, toRow(n))
	}
	return rows
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
