package news

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Subscriber struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	Email     string    `json:"email" gorm:"column:email"`
	Source    string    `json:"source" gorm:"column:source"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Subscriber) TableName() string { return "newsletter_subscribers" }

type Subscribers struct{ db *gorm.DB }

func NewSubscribers(db *gorm.DB) *Subscribers { return &Subscribers{db: db} }

// Subscribe stores email once. It reports whether a new row was written; repeated
// calls for the same address keep the first source.
func (s *Subscribers) Subscribe(ctx context.Context, email, source string) (bool, error) {
	row := Subscriber{ID: uuid.NewString(), Email: email, Source: source, CreatedAt: time.Now().UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("subscribe: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Subscribers) List(ctx context.Context) ([]Subscriber, error) {
	out := []Subscriber{}
	if err := s.db.WithContext(ctx).Order("created_at").Order("rowid").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return out, nil
}
