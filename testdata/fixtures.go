// Package testdata provides recorded hand keypoint fixtures for tests.
package testdata

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ayusman/handsign/internal/landmark"
)

//go:embed hands/*.json
var handsFS embed.FS

// LoadHand loads a recorded hand by name, without the .json suffix.
func LoadHand(name string) (landmark.HandLandmarks, error) {
	data, err := handsFS.ReadFile("hands/" + name + ".json")
	if err != nil {
		return landmark.HandLandmarks{}, fmt.Errorf("load hand %s: %w", name, err)
	}

	var hand landmark.HandLandmarks
	if err := json.Unmarshal(data, &hand); err != nil {
		return landmark.HandLandmarks{}, fmt.Errorf("decode hand %s: %w", name, err)
	}

	return hand, nil
}

// HandNames lists the available fixtures in sorted order.
func HandNames() ([]string, error) {
	entries, err := handsFS.ReadDir("hands")
	if err != nil {
		return nil, fmt.Errorf("read hands: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}
