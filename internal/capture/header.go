package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wanderfield/simcore/internal/world"
)

// HeaderSchemaVersion tracks the schema version for capture header documents.
const HeaderSchemaVersion = 1

// WorldInfo records the world parameters a capture was recorded against, so
// tooling can rebuild the same terrain when stepping through a bundle.
type WorldInfo struct {
	Name             string     `json:"name"`
	TerrainSeed      int64      `json:"terrain_seed,omitempty"`
	TerrainSize      float64    `json:"terrain_size,omitempty"`
	TerrainSegments  int        `json:"terrain_segments,omitempty"`
	TerrainAmplitude float64    `json:"terrain_amplitude,omitempty"`
	Spawn            [3]float64 `json:"spawn"`
	Floor            float64    `json:"floor"`
}

// DescribeWorld flattens a world definition into capture header metadata.
func DescribeWorld(def *world.Definition) WorldInfo {
	if def == nil {
		return WorldInfo{}
	}
	info := WorldInfo{
		Name:  def.Name,
		Spawn: [3]float64{def.Spawn.X, def.Spawn.Y, def.Spawn.Z},
		Floor: def.Floor,
	}
	if def.Terrain != nil {
		info.TerrainSeed = def.Terrain.Seed
		info.TerrainSize = def.Terrain.Size
		info.TerrainSegments = def.Terrain.Segments
		info.TerrainAmplitude = def.Terrain.Amplitude
	}
	return info
}

// Header is the metadata document persisted alongside a capture bundle.
type Header struct {
	SchemaVersion int       `json:"schema_version"`
	SessionID     string    `json:"session_id"`
	World         WorldInfo `json:"world"`
	FilePointer   string    `json:"file_pointer"`
}

// Validate ensures the header carries enough information for catalogue tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.SessionID) == "" {
		return fmt.Errorf("session_id must not be empty")
	}
	//1.- Tooling locates the rest of the bundle through this pointer.
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to the provided file path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	//1.- Indented JSON keeps the document readable during manual inspection.
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//2.- Terminate with a newline so POSIX tooling can append easily.
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and decodes a capture header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	//1.- Reuse validation so callers receive consistent error semantics.
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
