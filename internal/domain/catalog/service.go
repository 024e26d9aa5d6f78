// Package catalog holds the bookable services offered by the business.
package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category,omitempty"`
	PriceCents      int64     `json:"priceCents"`
	DurationMinutes int       `json:"durationMinutes"`
	Active          bool      `json:"active"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

var (
	ErrNotFound = errors.New("service not found")
	ErrInUse    = errors.New("service has bookings")
)

type CreateServiceRequest struct {
	Name            string `json:"name" binding:"required,min=2,max=120"`
	Description     string `json:"description" binding:"omitempty,max=2000"`
	Category        string `json:"category" binding:"omitempty,max=60"`
	PriceCents      *int64 `json:"priceCents" binding:"required,min=0"`
	DurationMinutes int    `json:"durationMinutes" binding:"required,min=5,max=720"`
	Active          *bool  `json:"active"`
}

type UpdateServiceRequest struct {
	Name            string `json:"name" binding:"required,min=2,max=120"`
	Description     string `json:"description" binding:"omitempty,max=2000"`
	Category        string `json:"category" binding:"omitempty,max=60"`
	PriceCents      *int64 `json:"priceCents" binding:"required,min=0"`
	DurationMinutes int    `json:"durationMinutes" binding:"required,min=5,max=720"`
	Active          *bool  `json:"active" binding:"required"`
}

func NewFromCreateRequest(req CreateServiceRequest) Service {
	now := time.Now().UTC()

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	var price int64
	if req.PriceCents != nil {
		price = *req.PriceCents
	}

	return Service{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Category:        strings.TrimSpace(req.Category),
		PriceCents:      price,
		DurationMinutes: req.DurationMinutes,
		Active:          active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
