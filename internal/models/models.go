package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"parentseed/internal/emotion"
)

type User struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"` // Encrypted in DB
	EmailBlindIndex string    `db:"email_blind_index" json:"-"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type JournalEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Date      string    `db:"entry_date" json:"date"` // YYYY-MM-DD, UTC+9 calendar day
	Emotions  Emotions  `db:"emotions" json:"emotions"`
	Content   string    `db:"content" json:"content"`   // Encrypted in DB
	AIAdvice  string    `db:"ai_advice" json:"ai_advice"` // Encrypted in DB
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Emotions maps a TEXT[] column onto vocabulary tags.
type Emotions []emotion.Tag

func (e *Emotions) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	out := make(Emotions, len(arr))
	for i, s := range arr {
		out[i] = emotion.Tag(s)
	}
	*e = out
	return nil
}

func (e Emotions) Value() (driver.Value, error) {
	return pq.StringArray(emotion.Strings(e)).Value()
}
