package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct{ db *gorm.DB }

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

type prefsRow struct {
	UserID    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Countries []string  `gorm:"column:countries;serializer:json"`
	Leagues   []string  `gorm:"column:leagues;serializer:json"`
	Teams     []string  `gorm:"column:teams;serializer:json"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (prefsRow) TableName() string { return "user_preferences" }

// Get returns empty lists for users that never saved preferences.
func (r *Repository) Get(ctx context.Context, userID int64) (Preferences, error) {
	var row prefsRow
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Empty(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return Preferences{Countries: row.Countries, Leagues: row.Leagues, Teams: row.Teams}.Clean(), nil
}

// Save replaces the stored preferences of the user.
func (r *Repository) Save(ctx context.Context, userID int64, p Preferences) (Preferences, error) {
	p = p.Clean()
	row := prefsRow{
		UserID:    userID,
		Countries: p.Countries,
		Leagues:   p.Leagues,
		Teams:     p.Teams,
		UpdatedAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"countries", "leagues", "teams", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}
