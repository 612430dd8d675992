package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/worksim/api/internal/config"
	"github.com/worksim/api/internal/model"
)

// GormStore implements Store on postgres
type GormStore struct {
	db *gorm.DB
}

// Connect opens the postgres pool and tunes it from config
func Connect(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Scenario{},
		&model.Coworker{},
		&model.Assessment{},
		&model.Recording{},
		&model.Conversation{},
		&model.VideoAssessment{},
		&model.VideoAssessmentSummary{},
		&model.VideoDimensionScore{},
	)
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	var a model.Assessment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *GormStore) CompleteAssessment(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Assessment{}).
		Where("id = ? AND status = ?", id, model.AssessmentStatusWorking).
		Updates(map[string]interface{}{
			"status":       model.AssessmentStatusCompleted,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("complete assessment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) SaveReport(ctx context.Context, assessmentID string, report *model.AssessmentReport) error {
	res := s.db.WithContext(ctx).Model(&model.Assessment{}).
		Where("id = ?", assessmentID).
		Update("report", report)
	if res.Error != nil {
		return fmt.Errorf("save report: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SavePRSnapshot(ctx context.Context, assessmentID string, snapshot *model.PRSnapshot) error {
	res := s.db.WithContext(ctx).Model(&model.Assessment{}).
		Where("id = ?", assessmentID).
		Update("pr_snapshot", snapshot)
	if res.Error != nil {
		return fmt.Errorf("save pr snapshot: %w", res.Error)
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *GormStore) UpdateUserImage(ctx context.Context, userID, imageURL string) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("image_url", imageURL)
	if res.Error != nil {
		return fmt.Errorf("update user image: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	var sc model.Scenario
	if err := s.db.WithContext(ctx).First(&sc, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sc, nil
}

func (s *GormStore) ListCoworkers(ctx context.Context, scenarioID string) ([]model.Coworker, error) {
	var rows []model.Coworker
	err := s.db.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list coworkers: %w", err)
	}
	return rows, nil
}

func (s *GormStore) CountRecordings(ctx context.Context, assessmentID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Recording{}).
		Where("assessment_id = ?", assessmentID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count recordings: %w", err)
	}
	return n, nil
}

func (s *GormStore) FirstRecording(ctx context.Context, assessmentID string) (*model.Recording, error) {
	var r model.Recording
	err := s.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("start_time ASC").
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *GormStore) ListConversations(ctx context.Context, assessmentID string) ([]model.Conversation, error) {
	var rows []model.Conversation
	err := s.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return rows, nil
}

func (s *GormStore) CountContactedCoworkers(ctx context.Context, assessmentID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("assessment_id = ? AND coworker_id IS NOT NULL", assessmentID).
		Distinct("coworker_id").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count contacted coworkers: %w", err)
	}
	return int(n), nil
}

func (s *GormStore) CreateVideoAssessment(ctx context.Context, va *model.VideoAssessment) (*model.VideoAssessment, bool, error) {
	if va.Status == "" {
		va.Status = model.VideoStatusPending
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "assessment_id"}}, DoNothing: true}).
		Create(va)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create video assessment: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return va, true, nil
	}
	existing, err := s.GetVideoAssessmentByAssessment(ctx, va.AssessmentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *GormStore) GetVideoAssessment(ctx context.Context, id string) (*model.VideoAssessment, error) {
	var va model.VideoAssessment
	err := s.db.WithContext(ctx).
		Preload("Summary").
		Preload("Scores").
		First(&va, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &va, nil
}

func (s *GormStore) GetVideoAssessmentByAssessment(ctx context.Context, assessmentID string) (*model.VideoAssessment, error) {
	var va model.VideoAssessment
	err := s.db.WithContext(ctx).
		Preload("Summary").
		Preload("Scores").
		First(&va, "assessment_id = ?", assessmentID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &va, nil
}

func (s *GormStore) StartVideoAssessment(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.VideoAssessment{}).
		Where("id = ? AND status = ?", id, model.VideoStatusPending).
		Updates(map[string]interface{}{
			"status":        model.VideoStatusProcessing,
			"attempts":      gorm.Expr("attempts + 1"),
			"started_at":    time.Now().UTC(),
			"error_message": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("start video assessment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ResetVideoAssessment(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.VideoAssessment{}).
		Where("id = ? AND status = ?", id, model.VideoStatusFailed).
		Updates(map[string]interface{}{
			"status":        model.VideoStatusPending,
			"error_message": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("reset video assessment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CompleteVideoAssessment(ctx context.Context, id string, summary *model.VideoAssessmentSummary, scores []model.VideoDimensionScore) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		summary.VideoAssessmentID = id
		if err := tx.Create(summary).Error; err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
		if len(scores) > 0 {
			for i := range scores {
				scores[i].VideoAssessmentID = id
			}
			if err := tx.Create(&scores).Error; err != nil {
				return fmt.Errorf("insert scores: %w", err)
			}
		}
		return markCompleted(tx, id)
	})
}

// markCompleted is the PROCESSING -> COMPLETED guard of
// CompleteVideoAssessment
func markCompleted(tx *gorm.DB, id string) error {
	res := tx.Model(&model.VideoAssessment{}).
		Where("id = ? AND status = ?", id, model.VideoStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.VideoStatusCompleted,
			"completed_at":  time.Now().UTC(),
			"error_message": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("mark completed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) ExpireVideoAssessment(ctx context.Context, id string, startedBefore time.Time, message string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.VideoAssessment{}).
		Where("id = ? AND status = ? AND (started_at IS NULL OR started_at < ?)", id, model.VideoStatusProcessing, startedBefore).
		Updates(map[string]interface{}{
			"status":        model.VideoStatusFailed,
			"error_message": message,
		})
	if res.Error != nil {
		return false, fmt.Errorf("expire video assessment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) FailVideoAssessment(ctx context.Context, id, message string) error {
	res := s.db.WithContext(ctx).Model(&model.VideoAssessment{}).
		Where("id = ? AND status = ?", id, model.VideoStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.VideoStatusFailed,
			"error_message": message,
		})
	if res.Error != nil {
		return fmt.Errorf("fail video assessment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
