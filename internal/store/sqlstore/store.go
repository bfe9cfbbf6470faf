// Package sqlstore persists templates, artifact pointers and student records with gorm.
// It implements every persistence port of the engine on one database handle.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/darmiel/kartei/internal/core"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(&log.Logger, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting database handle: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&templateRow{},
		&artifactRow{},
		&courseRow{},
		&enrollmentRow{},
		&profileRow{},
		&pendingDeletionRow{},
	)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrNotFound
	}
	return err
}

// TemplateStore

func (s *Store) GetTemplate(ctx context.Context, courseID string, kind core.Kind) (*core.Template, error) {
	var row templateRow
	err := s.db.WithContext(ctx).
		Where("course_id = ? AND kind = ?", courseID, string(kind)).
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return row.toCore(), nil
}

func (s *Store) PutTemplate(ctx context.Context, tpl core.Template) error {
	row := templateFromCore(tpl)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// ArtifactStore

func (s *Store) GetArtifact(ctx context.Context, key core.ArtifactKey) (*core.Artifact, error) {
	var row artifactRow
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND kind = ?", key.StudentID, key.CourseID, string(key.Kind)).
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return row.toCore(), nil
}

// CompareAndSwap inserts the first pointer of a key or updates it conditionally
// on the stored version in a single statement.
func (s *Store) CompareAndSwap(ctx context.Context, expectedVersion int64, next *core.Artifact) error {
	row := artifactFromCore(*next)
	row.Version = expectedVersion + 1

	var res *gorm.DB
	if expectedVersion == 0 {
		res = s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&row)
	} else {
		res = s.db.WithContext(ctx).
			Model(&artifactRow{}).
			Where("student_id = ? AND course_id = ? AND kind = ? AND version = ?",
				row.StudentID, row.CourseID, row.Kind, expectedVersion).
			Updates(map[string]any{
				"rendered_ref":     row.RenderedRef,
				"source_photo_ref": row.SourcePhotoRef,
				"generated_at":     row.GeneratedAt,
				"status":           row.Status,
				"version":          row.Version,
			})
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrVersionConflict
	}
	next.Version = row.Version
	return nil
}

// EnrollmentStore and ProfileStore

func (s *Store) GetCourse(ctx context.Context, courseID string) (*core.Course, error) {
	var row courseRow
	if err := s.db.WithContext(ctx).Where("id = ?", courseID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &core.Course{ID: row.ID, Title: row.Title, UnlockDelayDays: row.UnlockDelayDays}, nil
}

func (s *Store) GetEnrollment(ctx context.Context, studentID, courseID string) (*core.Enrollment, error) {
	var row enrollmentRow
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &core.Enrollment{
		StudentID:   row.StudentID,
		CourseID:    row.CourseID,
		EnrolledAt:  row.EnrolledAt,
		CompletedAt: row.CompletedAt,
	}, nil
}

func (s *Store) GetProfile(ctx context.Context, studentID string) (*core.Profile, error) {
	var row profileRow
	if err := s.db.WithContext(ctx).Where("student_id = ?", studentID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &core.Profile{
		StudentID:        row.StudentID,
		Name:             row.Name,
		IdentifierNumber: row.IdentifierNumber,
		PhotoRef:         row.PhotoRef,
	}, nil
}

// The records below are owned by the surrounding platform; the upserts exist
// for seeding and tests.

func (s *Store) PutCourse(ctx context.Context, c core.Course) error {
	row := courseRow{ID: c.ID, Title: c.Title, UnlockDelayDays: c.UnlockDelayDays}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *Store) PutEnrollment(ctx context.Context, e core.Enrollment) error {
	row := enrollmentRow{
		StudentID:   e.StudentID,
		CourseID:    e.CourseID,
		EnrolledAt:  e.EnrolledAt,
		CompletedAt: e.CompletedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *Store) PutProfile(ctx context.Context, p core.Profile) error {
	row := profileRow{
		StudentID:        p.StudentID,
		Name:             p.Name,
		IdentifierNumber: p.IdentifierNumber,
		PhotoRef:         p.PhotoRef,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// DeletionQueue

func (s *Store) Enqueue(ctx context.Context, ref, reason string) error {
	row := pendingDeletionRow{Ref: ref, Reason: reason, CreatedAt: s.now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) List(ctx context.Context, limit int) ([]core.PendingDeletion, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC, ref ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []pendingDeletionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.PendingDeletion, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.PendingDeletion{
			Ref:       r.Ref,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt,
			Attempts:  r.Attempts,
		})
	}
	return out, nil
}

func (s *Store) Done(ctx context.Context, ref string) error {
	return s.db.WithContext(ctx).Where("ref = ?", ref).Delete(&pendingDeletionRow{}).Error
}

func (s *Store) Failed(ctx context.Context, ref string) error {
	res := s.db.WithContext(ctx).
		Model(&pendingDeletionRow{}).
		Where("ref = ?", ref).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}
