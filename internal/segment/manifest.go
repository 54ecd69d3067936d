package segment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestExt = ".manifest.json"

// Manifest marks an archive whose segments are complete. Its presence is what
// lets a rerun skip the archive.
type Manifest struct {
	Archive         string              `json:"archive"`
	RunID           string              `json:"run_id"`
	Games           int64               `json:"games"`
	Perspectives    int64               `json:"perspectives"`
	Segments        map[string][]string `json:"segments"`
	DistinctPlayers uint32              `json:"distinct_players_approx"`
	CompletedAt     time.Time           `json:"completed_at"`
}

// ManifestPath returns where the manifest for prefix lives under root.
func ManifestPath(root, prefix string) string {
	return filepath.Join(root, prefix+manifestExt)
}

// ReadManifest returns the manifest for prefix, or nil if the archive has not
// completed.
func ReadManifest(root, prefix string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(root, prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", prefix, err)
	}
	return &m, nil
}

// WriteManifest writes the manifest for prefix atomically.
func WriteManifest(root, prefix string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := ManifestPath(root, prefix)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
