package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// ActivityCursor points at the last activity entry of a page (created_at DESC, id DESC).
type ActivityCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// JobCursor points at the last job of an admin page (updated_at DESC, id DESC).
type JobCursor struct {
	UpdatedAt time.Time `json:"updatedAt"`
	ID        string    `json:"id"`
}

func EncodeActivityCursor(createdAt time.Time, id string) (string, error) {
	return encodeCursor(ActivityCursor{CreatedAt: createdAt, ID: id})
}

func DecodeActivityCursor(cursor string) (ActivityCursor, error) {
	var c ActivityCursor
	if err := decodeCursor(cursor, &c); err != nil {
		return ActivityCursor{}, err
	}
	if !IsUUID(c.ID) || c.CreatedAt.IsZero() {
		return ActivityCursor{}, ErrInvalidCursor
	}
	return c, nil
}

func EncodeJobCursor(updatedAt time.Time, id string) (string, error) {
	return encodeCursor(JobCursor{UpdatedAt: updatedAt, ID: id})
}

func DecodeJobCursor(cursor string) (JobCursor, error) {
	var c JobCursor
	if err := decodeCursor(cursor, &c); err != nil {
		return JobCursor{}, err
	}
	if !IsUUID(c.ID) || c.UpdatedAt.IsZero() {
		return JobCursor{}, ErrInvalidCursor
	}
	return c, nil
}

func encodeCursor(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeCursor(cursor string, dst any) error {
	if cursor == "" {
		return ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return ErrInvalidCursor
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ErrInvalidCursor
	}
	return nil
}
