package catalog

import (
	"context"

	"github.com/mcdev12/songclash/internal/protocol"
)

// Catalog resolves a playlist id to its ordered song list. It is a pure
// read interface; the ingestion pipeline that fills playlists lives
// outside this server.
type Catalog interface {
	LookupSongs(ctx context.Context, playlistID string) ([]protocol.Song, error)
}
