package models

import "time"

// Pin is a manually placed item of a view.
type Pin struct {
	Layer string  `json:"layer" db:"layer"`
	ID    string  `json:"id" db:"item_id"`
	X     float64 `json:"x" db:"x"`
	Y     float64 `json:"y" db:"y"`
}

// Layout stores the manual pins of one view.
type Layout struct {
	View      string    `json:"view"`
	Pins      []Pin     `json:"pins"`
	UpdatedAt time.Time `json:"updated_at"`
}
