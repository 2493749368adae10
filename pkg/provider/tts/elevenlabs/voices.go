package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"

	"github.com/MrWong99/murmur/pkg/provider/tts"
)

// ListVoices returns the voices available to the API key, with the voice
// category folded into the metadata labels.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Voices []struct {
			ID       string            `json:"voice_id"`
			Name     string            `json:"name"`
			Category string            `json:"category"`
			Labels   map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: decode: %w", err)
	}

	voices := make([]tts.Voice, 0, len(body.Voices))
	for _, v := range body.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		maps.Copy(meta, v.Labels)
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{ID: v.ID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	return voices, nil
}
