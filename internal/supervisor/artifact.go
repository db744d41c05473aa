package supervisor

import (
	"encoding/json"
	"fmt"
)

// ArtifactName is the file the behavior pack imports its settings from.
const ArtifactName = "config.js"

// PluginConfig is what the behavior pack scripts need to reach the daemon.
type PluginConfig struct {
	ServerURL   string         `json:"server_url"`
	ServerToken string         `json:"server_token"`
	DataID      string         `json:"dataId"`
	Plugin      map[string]any `json:"plugin"`
}

// RenderArtifact renders cfg as an ES module whose default export is the
// configuration object.
func RenderArtifact(cfg PluginConfig) ([]byte, error) {
	if cfg.Plugin == nil {
		cfg.Plugin = map[string]any{}
	}
	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", ArtifactName, err)
	}
	out := make([]byte, 0, len(body)+24)
	out = append(out, "export default "...)
	out = append(out, body...)
	out = append(out, ";\n"...)
	return out, nil
}
