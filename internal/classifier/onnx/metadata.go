package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// Metadata describes the exported model's tensors.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Layout      string   `json:"layout"`
	ImageSize   int      `json:"image_size"`
	Classes     []string `json:"classes"`
	Softmax     bool     `json:"apply_softmax"`
}

func loadMetadata(path string, imageSize int) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if md.InputName == "" {
		md.InputName = "input"
	}
	if md.OutputName == "" {
		md.OutputName = "output"
	}
	if md.Layout == "" {
		md.Layout = models.LayoutNHWC
	}
	if md.Layout != models.LayoutNHWC && md.Layout != models.LayoutNCHW {
		return Metadata{}, fmt.Errorf("unsupported tensor layout %q", md.Layout)
	}
	if md.ImageSize == 0 {
		md.ImageSize = imageSize
	}
	if md.ImageSize != imageSize {
		return Metadata{}, fmt.Errorf("model expects %dpx images but IMAGE_SIZE is %d", md.ImageSize, imageSize)
	}
	if len(md.InputShape) == 0 {
		s := int64(imageSize)
		if md.Layout == models.LayoutNCHW {
			md.InputShape = []int64{1, 3, s, s}
		} else {
			md.InputShape = []int64{1, s, s, 3}
		}
	}
	if want := int64(3 * imageSize * imageSize); elements(md.InputShape) != want {
		return Metadata{}, fmt.Errorf("input shape %v does not hold a %dx%d RGB image", md.InputShape, imageSize, imageSize)
	}
	return md, nil
}

// loadLabels reads the label map. Two formats are accepted: an object mapping
// label to output index ({"Angus": 0, ...}) or a plain array ordered by index.
func loadLabels(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, fmt.Errorf("labels file %s is empty", path)
		}
		return list, nil
	}

	var byName map[string]int
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	if len(byName) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}

	type entry struct {
		name string
		idx  int
	}
	entries := make([]entry, 0, len(byName))
	for name, idx := range byName {
		entries = append(entries, entry{name, idx})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	labels := make([]string, len(entries))
	for i, e := range entries {
		if e.idx != i {
			return nil, fmt.Errorf("labels file %s: indices must be contiguous from 0, got %d for %q", path, e.idx, e.name)
		}
		labels[i] = e.name
	}
	return labels, nil
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
