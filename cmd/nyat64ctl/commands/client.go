package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// httpClient issues requests against the daemon's debug HTTP surface.
var httpClient = &http.Client{Timeout: 5 * time.Second}

// fetchJSON GETs path off debugAddr and decodes the response body into v.
func fetchJSON(path string, v any) error {
	url := "http://" + debugAddr + path

	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}

	return nil
}
