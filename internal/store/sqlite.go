package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/portal/internal/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// identityModel is the gorm mapping of the identities table.
type identityModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement:false"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"index;not null"`
	DisplayName  string `gorm:"not null;default:''"`
	ClaimedID    *int64 `gorm:"index"`
	CreatedAt    time.Time
}

func (identityModel) TableName() string { return "identities" }

// scoreModel is the gorm mapping of the scores table.
type scoreModel struct {
	ID        int64  `gorm:"primaryKey"`
	StudentID int64  `gorm:"not null;uniqueIndex:scores_student_subject_key"`
	Subject   string `gorm:"not null;uniqueIndex:scores_student_subject_key"`
	Mark      int    `gorm:"not null;check:mark BETWEEN 0 AND 100"`
	UpdatedAt time.Time
}

func (scoreModel) TableName() string { return "scores" }

// SQLite is a core.Store backed by gorm on SQLite. The schema is
// auto-migrated when the store is opened.
type SQLite struct {
	gormQueries
}

// OpenSQLite opens the SQLite database at dsn. A dsn of the form
// "file:<name>?mode=memory&cache=shared" gives a private in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps shared
	// in-memory databases alive and consistent.
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(&identityModel{}, &scoreModel{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLite{gormQueries{db: db}}, nil
}

// WithTx runs fn inside a transaction. fn's error is returned unchanged.
func (s *SQLite) WithTx(ctx context.Context, fn func(q core.Queries) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormQueries{db: tx})
	})
}

func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormQueries implements core.Queries over a gorm handle, which may be a
// transaction.
type gormQueries struct {
	db *gorm.DB
}

// gormErr maps gorm and driver errors onto core sentinels.
func gormErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed: identities.username") {
		return fmt.Errorf("%w: %s", core.ErrUsernameTaken, err.Error())
	}
	return err
}

func (m identityModel) toCore() core.Identity {
	return core.Identity{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         core.Role(m.Role),
		DisplayName:  m.DisplayName,
		ClaimedID:    m.ClaimedID,
		CreatedAt:    m.CreatedAt,
	}
}

func (m scoreModel) toCore() core.ScoreRecord {
	return core.ScoreRecord{
		ID:        m.ID,
		StudentID: m.StudentID,
		Subject:   m.Subject,
		Mark:      m.Mark,
		UpdatedAt: m.UpdatedAt,
	}
}

func (g gormQueries) findIdentity(ctx context.Context, query string, args ...any) (core.Identity, error) {
	var m identityModel
	err := g.db.WithContext(ctx).Where(query, args...).Order("id").Take(&m).Error
	if err != nil {
		return core.Identity{}, gormErr(err)
	}
	return m.toCore(), nil
}

func (g gormQueries) GetIdentity(ctx context.Context, id int64) (core.Identity, error) {
	return g.findIdentity(ctx, "id = ?", id)
}

func (g gormQueries) GetIdentityByUsername(ctx context.Context, username string) (core.Identity, error) {
	return g.findIdentity(ctx, "username = ?", username)
}

func (g gormQueries) GetStudentByClaimedID(ctx context.Context, claimedID int64) (core.Identity, error) {
	return g.findIdentity(ctx, "claimed_id = ? AND role = ?", claimedID, string(core.RoleStudent))
}

func (g gormQueries) MaxIdentityID(ctx context.Context) (int64, error) {
	var maxID int64
	row := g.db.WithContext(ctx).Model(&identityModel{}).Select("COALESCE(MAX(id), 0)").Row()
	if err := row.Scan(&maxID); err != nil {
		return 0, gormErr(err)
	}
	return maxID, nil
}

func (g gormQueries) CreateIdentity(ctx context.Context, identity core.Identity) (core.Identity, error) {
	m := identityModel{
		ID:           identity.ID,
		Username:     identity.Username,
		Email:        identity.Email,
		PasswordHash: identity.PasswordHash,
		Role:         string(identity.Role),
		DisplayName:  identity.DisplayName,
		ClaimedID:    identity.ClaimedID,
	}
	if err := g.db.WithContext(ctx).Create(&m).Error; err != nil {
		return core.Identity{}, gormErr(err)
	}
	return m.toCore(), nil
}

func (g gormQueries) GetScore(ctx context.Context, studentID int64, subject string) (core.ScoreRecord, error) {
	var m scoreModel
	err := g.db.WithContext(ctx).
		Where("student_id = ? AND subject = ?", studentID, subject).
		Take(&m).Error
	if err != nil {
		return core.ScoreRecord{}, gormErr(err)
	}
	return m.toCore(), nil
}

func (g gormQueries) CreateScore(ctx context.Context, score core.ScoreRecord) (core.ScoreRecord, error) {
	m := scoreModel{
		StudentID: score.StudentID,
		Subject:   score.Subject,
		Mark:      score.Mark,
	}
	if err := g.db.WithContext(ctx).Create(&m).Error; err != nil {
		return core.ScoreRecord{}, gormErr(err)
	}
	return m.toCore(), nil
}

func (g gormQueries) UpdateScoreMark(ctx context.Context, id int64, mark int) error {
	res := g.db.WithContext(ctx).
		Model(&scoreModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"mark": mark, "updated_at": time.Now()})
	if res.Error != nil {
		return gormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (g gormQueries) ListScoresByStudent(ctx context.Context, studentID int64) ([]core.ScoreRecord, error) {
	var models []scoreModel
	err := g.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("subject").
		Find(&models).Error
	if err != nil {
		return nil, gormErr(err)
	}

	out := make([]core.ScoreRecord, len(models))
	for i, m := range models {
		out[i] = m.toCore()
	}
	return out, nil
}

func (g gormQueries) CountIdentities(ctx context.Context) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&identityModel{}).Count(&n).Error
	return n, gormErr(err)
}

func (g gormQueries) CountIdentitiesByRole(ctx context.Context, role core.Role) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&identityModel{}).Where("role = ?", string(role)).Count(&n).Error
	return n, gormErr(err)
}

func (g gormQueries) CountScores(ctx context.Context) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&scoreModel{}).Count(&n).Error
	return n, gormErr(err)
}
