package models

import "time"

// Branch is a physical clinic location that can be funded by investors.
type Branch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:191;not null" json:"name"`
	City      string    `gorm:"size:100" json:"city"`
	Address   *string   `gorm:"type:text" json:"address,omitempty"`
	Status    string    `gorm:"type:varchar(16);default:'Active'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Branch) TableName() string {
	return "branches"
}
