// Package export writes aggregated morphometry results to disk on behalf
// of the caller.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"cytosort/internal/morpho"
)

// WriteJSON writes per-image attributes as an indented JSON object keyed
// by image identifier, every entry carrying all 14 descriptors.
func WriteJSON(path string, attrs map[string]morpho.Attributes) error {
	rows := make(map[string]map[string]float64, len(attrs))
	for id, a := range attrs {
		rows[id] = a.Map()
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteCSV writes per-image attributes as CSV with a header row of the
// image identifier followed by the descriptor names in stable order.
func WriteCSV(path string, attrs map[string]morpho.Attributes) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	ids := make([]string, 0, len(attrs))
	for id := range attrs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := csv.NewWriter(file)
	header := append([]string{"image"}, morpho.Keys...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, id := range ids {
		m := attrs[id].Map()
		row := make([]string, 0, len(header))
		row = append(row, id)
		for _, key := range morpho.Keys {
			row = append(row, strconv.FormatFloat(m[key], 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row for %s: %w", id, err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteAssignment writes the image-to-label table as indented JSON.
func WriteAssignment(path string, labels map[string]int) error {
	data, err := json.MarshalIndent(labels, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
