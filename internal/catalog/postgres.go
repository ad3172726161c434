package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/songclash/internal/protocol"
)

// PostgresCatalog reads the songs table maintained by the playlist
// ingestion service. It never writes.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) LookupSongs(ctx context.Context, playlistID string) ([]protocol.Song, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT name, artists, image_url, preview_url FROM songs WHERE playlist_id = $1`,
		playlistID)
	if err != nil {
		return nil, fmt.Errorf("query songs for playlist %s: %w", playlistID, err)
	}
	defer rows.Close()

	var songs []protocol.Song
	for rows.Next() {
		var song protocol.Song
		if err := rows.Scan(&song.Name, &song.Artists, &song.ImageURL, &song.PreviewURL); err != nil {
			return nil, fmt.Errorf("scan song row: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate song rows: %w", err)
	}
	return songs, nil
}
