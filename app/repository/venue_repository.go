package repository

import (
	"context"

	"github.com/ManuelReschke/TableFox/app/models"
	"gorm.io/gorm"
)

type venueRepository struct {
	db *gorm.DB
}

// NewVenueRepository creates a new venue repository instance
func NewVenueRepository(db *gorm.DB) VenueRepository {
	return &venueRepository{db: db}
}

func (r *venueRepository) GetByID(ctx context.Context, id uint) (*models.Venue, error) {
	var venue models.Venue
	if err := r.db.WithContext(ctx).First(&venue, id).Error; err != nil {
		return nil, err
	}
	return &venue, nil
}

func (r *venueRepository) GetService(ctx context.Context, venueID, serviceID uint) (*models.Service, error) {
	var service models.Service
	err := r.db.WithContext(ctx).
		Where("id = ? AND venue_id = ?", serviceID, venueID).
		First(&service).Error
	if err != nil {
		return nil, err
	}
	return &service, nil
}

func (r *venueRepository) ListTables(ctx context.Context, venueID uint) ([]models.Table, error) {
	var tables []models.Table
	err := r.db.WithContext(ctx).
		Where("venue_id = ?", venueID).
		Order("priority_rank ASC, id ASC").
		Find(&tables).Error
	return tables, err
}

func (r *venueRepository) ListJoinGroups(ctx context.Context, venueID uint) ([]models.JoinGroup, error) {
	var groups []models.JoinGroup
	err := r.db.WithContext(ctx).
		Preload("Tables").
		Where("venue_id = ?", venueID).
		Order("max_party_size ASC, id ASC").
		Find(&groups).Error
	return groups, err
}
