// Package config reads the device manager's policy file. The file is a YAML
// mapping of section names to mappings of property names to scalar values:
//
//	bindings:
//	  pci unit 8086100E: e1000
//	  pci class 02000000/FFFF0000: netdrv!install
//	drivers:
//	  loop: mtu=1500
//
// Property order inside a section is preserved; binding rules depend on it.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotMapping = errors.New("expected a mapping")
)

type Property struct {
	Name  string
	Value string
}

type Section struct {
	Name       string
	Properties []Property
}

// Size is the number of properties in the section.
func (s *Section) Size() int {
	if s == nil {
		return 0
	}

	return len(s.Properties)
}

// Get returns the value of the first property named name.
func (s *Section) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}

	for _, p := range s.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}

	return "", false
}

type Config struct {
	Sections []*Section
}

// FindSection returns the named section or nil. It is safe on a nil Config.
func (c *Config) FindSection(name string) *Section {
	if c == nil {
		return nil
	}

	for _, s := range c.Sections {
		if s.Name == name {
			return s
		}
	}

	return nil
}

func Load(path string) (*Config, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	cfg, err := Parse(d)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	return cfg, nil
}

func Parse(d []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(d, &doc); err != nil {
		return nil, err
	}

	cfg := &Config{}

	//empty document
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return cfg, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Wrap(ErrNotMapping, "top level")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		body := root.Content[i+1]

		sect := &Section{Name: name}

		switch body.Kind {
		case yaml.MappingNode:
			for j := 0; j+1 < len(body.Content); j += 2 {
				sect.Properties = append(sect.Properties, Property{
					Name:  body.Content[j].Value,
					Value: scalar(body.Content[j+1]),
				})
			}
		case yaml.ScalarNode:
			// "section:" with no body
			if body.Tag != "!!null" {
				return nil, errors.Wrapf(ErrNotMapping, "section %s", name)
			}
		default:
			return nil, errors.Wrapf(ErrNotMapping, "section %s", name)
		}

		cfg.Sections = append(cfg.Sections, sect)
	}

	return cfg, nil
}

func scalar(n *yaml.Node) string {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}

	return n.Value
}
