package installer

import (
	"encoding/json"

	"github.com/yungbote/neurod/internal/platform/apierr"
)

// ModelEntry is one entry in the manifest's "model" mapping.
type ModelEntry struct {
	Type string `json:"type"`
	File string `json:"file"`
}

// Manifest is the package manifest bundled in every archive (meta.json),
// per spec.md §3.
type Manifest struct {
	Name      string                `json:"name"`
	Module    string                `json:"module"`
	Model     map[string]ModelEntry `json:"model"`
	Version   string                `json:"version,omitempty"`
	HumanName string                `json:"human_name,omitempty"`
}

var allowedKeys = map[string]bool{
	"name": true, "module": true, "model": true, "version": true, "human_name": true,
}

// ParseManifest validates raw meta.json bytes against spec.md §3's required
// fields and rejects unknown extra keys, grounded on
// hivemind_daemon/package/install.py's cerberus package_validator
// (allow_unknown=False).
func ParseManifest(raw []byte) (Manifest, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Manifest{}, apierr.New(apierr.ValidationError, "meta.json is not valid JSON", nil)
	}
	for k := range generic {
		if !allowedKeys[k] {
			return Manifest{}, apierr.New(apierr.ValidationError, "unknown manifest key: "+k, nil)
		}
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, apierr.New(apierr.ValidationError, "meta.json does not match the manifest shape", nil)
	}
	if m.Name == "" {
		return Manifest{}, apierr.New(apierr.ValidationError, "manifest missing required field: name", nil)
	}
	if m.Module == "" {
		return Manifest{}, apierr.New(apierr.ValidationError, "manifest missing required field: module", nil)
	}
	if len(m.Model) == 0 {
		return Manifest{}, apierr.New(apierr.ValidationError, "manifest missing required field: model", nil)
	}
	for name, entry := range m.Model {
		if entry.Type == "" || entry.File == "" {
			return Manifest{}, apierr.New(apierr.ValidationError, "model entry "+name+" missing type/file", nil)
		}
	}
	return m, nil
}
