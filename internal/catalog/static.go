package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/songclash/internal/protocol"
)

// StaticCatalog serves playlists from memory. Used by tests and by local
// runs without a database. Unknown playlists resolve to an empty list.
type StaticCatalog struct {
	playlists map[string][]protocol.Song
}

func NewStaticCatalog(playlists map[string][]protocol.Song) *StaticCatalog {
	return &StaticCatalog{playlists: playlists}
}

func (c *StaticCatalog) LookupSongs(_ context.Context, playlistID string) ([]protocol.Song, error) {
	songs := c.playlists[playlistID]
	out := make([]protocol.Song, len(songs))
	copy(out, songs)
	return out, nil
}

type staticCatalogFile struct {
	Playlists map[string][]struct {
		Name       string `yaml:"name"`
		Artists    string `yaml:"artists"`
		ImageURL   string `yaml:"image_url"`
		PreviewURL string `yaml:"preview_url"`
	} `yaml:"playlists"`
}

// LoadStaticCatalog reads playlists from a YAML file.
func LoadStaticCatalog(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file staticCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	playlists := make(map[string][]protocol.Song, len(file.Playlists))
	for playlistID, entries := range file.Playlists {
		songs := make([]protocol.Song, 0, len(entries))
		for _, entry := range entries {
			songs = append(songs, protocol.Song{
				Name:       entry.Name,
				Artists:    entry.Artists,
				ImageURL:   entry.ImageURL,
				PreviewURL: entry.PreviewURL,
			})
		}
		playlists[playlistID] = songs
	}
	return NewStaticCatalog(playlists), nil
}
