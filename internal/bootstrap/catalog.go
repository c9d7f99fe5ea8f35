package bootstrap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogEntry maps one (family, size, provider) combination to a
// downloadable repository id (spec §4.6 step 2).
type catalogEntry struct {
	Family   string `yaml:"family"`
	Size     string `yaml:"size"`
	Provider string `yaml:"provider"`
	RepoID   string `yaml:"repo_id"`
}

// Catalog is the static compatibility table loaded from catalog.yaml.
type Catalog struct {
	entries []catalogEntry
}

// LoadCatalog reads and parses a catalog.yaml file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read catalog %s: %w", path, err)
	}
	var doc struct {
		Models []catalogEntry `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bootstrap: parse catalog %s: %w", path, err)
	}
	return &Catalog{entries: doc.Models}, nil
}

// Resolve looks up the repo id for (family, size, provider). The bool is
// false when the combination is unsupported (spec §4.6 step 2: "transition
// Failed{reason}").
func (c *Catalog) Resolve(family, size, provider string) (string, bool) {
	for _, e := range c.entries {
		if e.Family == family && e.Size == size && e.Provider == provider {
			return e.RepoID, true
		}
	}
	return "", false
}

// DefaultCatalog is used when no catalog.yaml is supplied; it covers the
// handful of family/size/provider combinations Shammah ships bootstrap
// support for out of the box.
func DefaultCatalog() *Catalog {
	return &Catalog{entries: []catalogEntry{
		{Family: "qwen", Size: "1.5b", Provider: "huggingface", RepoID: "Qwen/Qwen2.5-1.5B-Instruct"},
		{Family: "qwen", Size: "7b", Provider: "huggingface", RepoID: "Qwen/Qwen2.5-7B-Instruct"},
		{Family: "llama", Size: "8b", Provider: "huggingface", RepoID: "meta-llama/Llama-3.1-8B-Instruct"},
		{Family: "phi", Size: "3.8b", Provider: "huggingface", RepoID: "microsoft/Phi-3.5-mini-instruct"},
	}}
}
