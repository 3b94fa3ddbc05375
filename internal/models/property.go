package models

import "time"

type Property struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Address   string    `yaml:"address" json:"address"`
	Bedrooms  int       `yaml:"bedrooms" json:"bedrooms"`
	MaxGuests int       `yaml:"max_guests" json:"max_guests"`
	SortOrder int64     `yaml:"sort_order" json:"sort_order"`
	IsActive  bool      `yaml:"is_active" json:"is_active"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}
