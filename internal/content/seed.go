package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is either a single document or a list under "documents".
type seedFile struct {
	Documents []*Document `yaml:"documents"`
}

// LoadYAML reads documents from YAML. Both a bare document and a
// "documents:" list are accepted.
func LoadYAML(r io.Reader) ([]*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	docs := file.Documents
	if len(docs) == 0 {
		var doc Document
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("seed is empty")
			}
			return nil, fmt.Errorf("failed to parse seed: %w", err)
		}
		docs = []*Document{&doc}
	}

	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("seed document %d: %w", i, err)
		}
	}
	return docs, nil
}

// LoadYAMLFile reads a seed file from disk.
func LoadYAMLFile(path string) ([]*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}
