package ring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MetadataSchemaVersion tracks the schema version for ring metadata sidecars.
const MetadataSchemaVersion = 1

// Metadata is the small JSON sidecar written next to a ring segment so the
// standalone cleanup utility can discover and classify live segments
// without scanning /dev/shm contents directly.
type Metadata struct {
	SchemaVersion int       `json:"schema_version"`
	Name          string    `json:"name"`
	MetaName      string    `json:"meta_name"`
	SlotSize      uint32    `json:"slot_size"`
	SlotCount     uint32    `json:"slot_count"`
	OwnerPID      int       `json:"owner_pid"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate ensures the metadata carries enough information for cleanup
// tooling to act on it.
func (m Metadata) Validate() error {
	if m.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if m.SlotSize == 0 || m.SlotCount == 0 {
		return fmt.Errorf("slot_size and slot_count must be positive")
	}
	if m.OwnerPID <= 0 {
		return fmt.Errorf("owner_pid must be positive")
	}
	return nil
}

// WriteMetadata persists the sidecar to path, creating parent directories as
// needed.
func WriteMetadata(path string, m Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadMetadata loads and validates a sidecar from disk.
func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, err
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}
