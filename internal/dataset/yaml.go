package dataset

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/boxlabel/internal/fsutil"
)

// DataYAMLName is the trainer index file written at the dataset root.
const DataYAMLName = "data.yaml"

type dataYAML struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	Test  *string        `yaml:"test"`
	Names map[int]string `yaml:"names"`
}

func writeDataYAML(path, root string, names []string) error {
	doc := dataYAML{
		Path:  root,
		Train: "images/" + splitTrain,
		Val:   "images/" + splitVal,
		Names: make(map[int]string, len(names)),
	}
	for i, n := range names {
		doc.Names[i] = n
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}
