package collector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest lists the sources of a page in YAML:
//
//	css:
//	  - css/base.css
//	  - url: https://cdn.example.com/reset.css
//	  - content: "body{margin:0}"
//	js:
//	  - file: js/app.js
//
// A bare string is a file path.
type Manifest struct {
	CSS []ManifestItem `yaml:"css"`
	JS  []ManifestItem `yaml:"js"`
}

// ManifestItem is one source. Exactly one field is set.
type ManifestItem struct {
	File    string `yaml:"file,omitempty"`
	Content string `yaml:"content,omitempty"`
	URL     string `yaml:"url,omitempty"`
}

// UnmarshalYAML accepts either a scalar path or a mapping.
func (i *ManifestItem) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.File = node.Value
		return nil
	}

	type plain ManifestItem
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*i = ManifestItem(p)

	set := 0
	for _, v := range []string{i.File, i.Content, i.URL} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("line %d: manifest item must set exactly one of file, content or url", node.Line)
	}

	return nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return ParseManifest(data)
}

// ParseManifest parses manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	return &m, nil
}

// Apply adds every item to c in manifest order. The first failing item
// stops the walk.
func (m *Manifest) Apply(c *Collector) error {
	for _, item := range m.CSS {
		if err := item.apply(c.AddCss, c.AddCssContent, c.AddCssURL); err != nil {
			return err
		}
	}
	for _, item := range m.JS {
		if err := item.apply(c.AddJs, c.AddJsContent, c.AddJsURL); err != nil {
			return err
		}
	}

	return nil
}

func (i ManifestItem) apply(
	addFile func(...string) error,
	addContent func(string),
	addURL func(string) error,
) error {
	switch {
	case i.URL != "":
		return addURL(i.URL)
	case i.Content != "":
		addContent(i.Content)
		return nil
	default:
		return addFile(i.File)
	}
}
