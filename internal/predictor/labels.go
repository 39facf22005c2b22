package predictor

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/boxlabel/internal/fsutil"
)

// LoadLabels reads a model label table: one name per line, or a YAML file
// with a names list or {id: name} map as written next to YOLO datasets.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAMLLabels(data)
	default:
		var labels []string
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if l := strings.TrimSpace(scanner.Text()); l != "" {
				labels = append(labels, l)
			}
		}
		return labels, scanner.Err()
	}
}

func parseYAMLLabels(data []byte) ([]string, error) {
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		err := doc.Names.Decode(&names)
		return names, err
	case yaml.MappingNode:
		var byID map[int]string
		if err := doc.Names.Decode(&byID); err != nil {
			return nil, err
		}
		ids := make([]int, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		names := make([]string, 0, len(ids))
		for i, id := range ids {
			if id != i {
				return nil, fmt.Errorf("names map is not contiguous at id %d", i)
			}
			names = append(names, byID[id])
		}
		return names, nil
	default:
		return nil, fmt.Errorf("no names section")
	}
}

// findLabelFile looks next to the model for a label table.
func findLabelFile(modelPath string) string {
	dir := filepath.Dir(modelPath)
	stem := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
	for _, name := range []string{stem + ".txt", stem + ".yaml", "labels.txt", "classes.txt", "data.yaml", "metadata.yaml"} {
		if p := filepath.Join(dir, name); fsutil.Exists(p) {
			return p
		}
	}
	return ""
}
