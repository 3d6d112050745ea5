package models

import "time"

// Table is a physical table on a venue floor. PriorityRank is a preference
// ordinal: rank 1 is offered before rank 2.
type Table struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	VenueID      uint      `gorm:"not null;index" json:"venue_id"`
	Name         string    `gorm:"type:varchar(50);not null" json:"name"`
	Seats        int       `gorm:"not null" json:"seats"`
	PriorityRank int       `gorm:"not null;default:100" json:"priority_rank"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// JoinGroup is a pre-declared set of tables that can be pushed together for a
// party between MinPartySize and MaxPartySize guests.
type JoinGroup struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	VenueID      uint      `gorm:"not null;index" json:"venue_id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	MinPartySize int       `gorm:"not null" json:"min_party_size"`
	MaxPartySize int       `gorm:"not null" json:"max_party_size"`
	Tables       []Table   `gorm:"many2many:join_group_tables" json:"tables"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
