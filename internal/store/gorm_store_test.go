package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/worksim/api/internal/model"
)

type capturedSQL struct {
	sql  string
	vars []interface{}
}

type sqlRecorder struct {
	mu    sync.Mutex
	stmts []capturedSQL
}

func (r *sqlRecorder) record(tx *gorm.DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, capturedSQL{
		sql:  tx.Statement.SQL.String(),
		vars: append([]interface{}(nil), tx.Statement.Vars...),
	})
}

func (r *sqlRecorder) only(t *testing.T) capturedSQL {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stmts) != 1 {
		t.Fatalf("statements = %d, want 1: %+v", len(r.stmts), r.stmts)
	}
	return r.stmts[0]
}

// newDryRunStore builds a GormStore whose statements are rendered for
// postgres and recorded instead of executed
func newDryRunStore(t *testing.T) (*GormStore, *sqlRecorder) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open dry run db: %v", err)
	}

	rec := &sqlRecorder{}
	if err := db.Callback().Update().After("gorm:update").Register("test:record_update", rec.record); err != nil {
		t.Fatalf("register update callback: %v", err)
	}
	if err := db.Callback().Create().After("gorm:create").Register("test:record_create", rec.record); err != nil {
		t.Fatalf("register create callback: %v", err)
	}
	return NewGormStore(db), rec
}

// assertGuard checks the statement is an UPDATE whose trailing bind vars
// are the WHERE arguments
func assertGuard(t *testing.T, stmt capturedSQL, table string, where ...interface{}) {
	t.Helper()
	if !strings.HasPrefix(stmt.sql, `UPDATE "`+table+`" SET`) {
		t.Errorf("sql = %s, want an update of %s", stmt.sql, table)
	}
	if !strings.Contains(stmt.sql, "id = $") || !strings.Contains(stmt.sql, "status = $") {
		t.Errorf("sql = %s, want an id and status guard", stmt.sql)
	}
	if len(stmt.vars) < len(where) {
		t.Fatalf("vars = %v, want at least %d", stmt.vars, len(where))
	}
	got := stmt.vars[len(stmt.vars)-len(where):]
	for i := range where {
		if fmt.Sprint(got[i]) != fmt.Sprint(where[i]) {
			t.Errorf("where var %d = %v, want %v (sql %s)", i, got[i], where[i], stmt.sql)
		}
	}
}

func hasVar(vars []interface{}, want interface{}) bool {
	for _, v := range vars {
		if fmt.Sprint(v) == fmt.Sprint(want) {
			return true
		}
	}
	return false
}

func TestGormCompleteAssessmentGuardsWorking(t *testing.T) {
	s, rec := newDryRunStore(t)

	if _, err := s.CompleteAssessment(context.Background(), "a-1", time.Now()); err != nil {
		t.Fatalf("CompleteAssessment: %v", err)
	}

	stmt := rec.only(t)
	assertGuard(t, stmt, "assessments", "a-1", model.AssessmentStatusWorking)
	if !hasVar(stmt.vars, model.AssessmentStatusCompleted) {
		t.Errorf("vars = %v, want COMPLETED", stmt.vars)
	}
}

func TestGormVideoAssessmentTransitions(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		run   func(s *GormStore) error
		from  model.VideoAssessmentStatus
		to    model.VideoAssessmentStatus
		extra []interface{}
		check func(t *testing.T, stmt capturedSQL)
	}{
		{
			name: "start",
			run: func(s *GormStore) error {
				_, err := s.StartVideoAssessment(ctx, "va-1")
				return err
			},
			from: model.VideoStatusPending,
			to:   model.VideoStatusProcessing,
			check: func(t *testing.T, stmt capturedSQL) {
				if !strings.Contains(stmt.sql, `"attempts"=attempts + 1`) {
					t.Errorf("sql = %s, want the attempt counted in the same statement", stmt.sql)
				}
			},
		},
		{
			name: "reset",
			run: func(s *GormStore) error {
				_, err := s.ResetVideoAssessment(ctx, "va-1")
				return err
			},
			from: model.VideoStatusFailed,
			to:   model.VideoStatusPending,
		},
		{
			name: "fail",
			run: func(s *GormStore) error {
				if err := s.FailVideoAssessment(ctx, "va-1", "model timeout"); !errors.Is(err, ErrConflict) {
					return fmt.Errorf("err = %v, want ErrConflict when no row matches", err)
				}
				return nil
			},
			from: model.VideoStatusProcessing,
			to:   model.VideoStatusFailed,
		},
		{
			name: "expire",
			run: func(s *GormStore) error {
				_, err := s.ExpireVideoAssessment(ctx, "va-1", cutoff, "evaluation timed out")
				return err
			},
			from:  model.VideoStatusProcessing,
			to:    model.VideoStatusFailed,
			extra: []interface{}{cutoff},
			check: func(t *testing.T, stmt capturedSQL) {
				if !strings.Contains(stmt.sql, "started_at IS NULL OR started_at < $") {
					t.Errorf("sql = %s, want a started_at cutoff", stmt.sql)
				}
			},
		},
		{
			name: "complete",
			run: func(s *GormStore) error {
				if err := markCompleted(s.db.WithContext(ctx), "va-1"); !errors.Is(err, ErrConflict) {
					return fmt.Errorf("err = %v, want ErrConflict when no row matches", err)
				}
				return nil
			},
			from: model.VideoStatusProcessing,
			to:   model.VideoStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec := newDryRunStore(t)
			if err := tt.run(s); err != nil {
				t.Fatal(err)
			}

			stmt := rec.only(t)
			where := append([]interface{}{"va-1", tt.from}, tt.extra...)
			assertGuard(t, stmt, "video_assessments", where...)
			if !hasVar(stmt.vars[:len(stmt.vars)-len(where)], tt.to) {
				t.Errorf("set vars = %v, want %s", stmt.vars, tt.to)
			}
			if tt.check != nil {
				tt.check(t, stmt)
			}
		})
	}
}

func TestGormCreateVideoAssessmentIgnoresDuplicate(t *testing.T) {
	s, rec := newDryRunStore(t)

	_, _, _ = s.CreateVideoAssessment(context.Background(), &model.VideoAssessment{
		AssessmentID: "a-1",
		CandidateID:  "u-1",
		VideoURL:     "https://cdn.example.com/rec.webm",
	})

	stmt := rec.only(t)
	if !strings.HasPrefix(stmt.sql, `INSERT INTO "video_assessments"`) {
		t.Errorf("sql = %s, want an insert", stmt.sql)
	}
	if !strings.Contains(stmt.sql, `ON CONFLICT ("assessment_id") DO NOTHING`) {
		t.Errorf("sql = %s, want the insert to yield on a duplicate assessment", stmt.sql)
	}
	if !hasVar(stmt.vars, model.VideoStatusPending) {
		t.Errorf("vars = %v, want PENDING", stmt.vars)
	}
}
