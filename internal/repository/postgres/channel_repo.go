package postgres

import (
	"database/sql"
	"fmt"

	"github.com/vistream/panel/internal/domain"
)

type ChannelRepo struct {
	DB *sql.DB
}

func NewChannelRepo(db *sql.DB) *ChannelRepo {
	return &ChannelRepo{DB: db}
}

// GetByID retrieves a channel by ID
func (r *ChannelRepo) GetByID(channelID int64) (*domain.Channel, error) {
	query := `SELECT id, name, upstream_url, is_active, created_at FROM channels WHERE id = $1;`
	var ch domain.Channel
	err := r.DB.QueryRow(query, channelID).Scan(
		&ch.ID,
		&ch.Name,
		&ch.UpstreamURL,
		&ch.IsActive,
		&ch.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %v", err)
	}
	return &ch, nil
}

// ListActive retrieves all channels available for playback
func (r *ChannelRepo) ListActive() ([]domain.Channel, error) {
	query := `SELECT id, name, upstream_url, is_active, created_at FROM channels WHERE is_active = TRUE ORDER BY name;`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %v", err)
	}
	defer rows.Close()

	channels := make([]domain.Channel, 0)
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.UpstreamURL, &ch.IsActive, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %v", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channel rows: %v", err)
	}

	return channels, nil
}
