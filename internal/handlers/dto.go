package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"parentseed/internal/emotion"
	"parentseed/internal/models"
)

type UserDTO struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt string    `json:"created_at"`
}

func toUserDTO(u models.User) UserDTO {
	return UserDTO{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt.Format(time.RFC3339)}
}

// EntryDTO keeps date as a plain day string and created_at as RFC3339.
type EntryDTO struct {
	ID        uuid.UUID     `json:"id"`
	Date      string        `json:"date"`
	Emotions  []emotion.Tag `json:"emotions"`
	Content   string        `json:"content"`
	AIAdvice  string        `json:"ai_advice"`
	CreatedAt string        `json:"created_at"`
}

func toEntryDTO(e models.JournalEntry) EntryDTO {
	tags := []emotion.Tag(e.Emotions)
	if tags == nil {
		tags = []emotion.Tag{}
	}
	return EntryDTO{
		ID:        e.ID,
		Date:      e.Date,
		Emotions:  tags,
		Content:   e.Content,
		AIAdvice:  e.AIAdvice,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
