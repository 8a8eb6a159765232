package catalog

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// catalogFile is the on-disk layout of a catalogue.
type catalogFile struct {
	Tools   []ToolSpec `yaml:"tools"`
	Intents []struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		Tools       []string `yaml:"tools"`
		Keywords    []string `yaml:"keywords"`
		Parameters  []struct {
			Name        string    `yaml:"name"`
			Type        ParamType `yaml:"type"`
			Question    string    `yaml:"question"`
			Description string    `yaml:"description"`
			// Required defaults to true when omitted.
			Required *bool `yaml:"required"`
		} `yaml:"parameters"`
	} `yaml:"intents"`
}

// Load reads a YAML catalogue file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalogue.
func Parse(data []byte) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalidCatalog, err)
	}

	intents := make([]IntentSpec, 0, len(f.Intents))
	for _, fi := range f.Intents {
		in := IntentSpec{
			Name:        fi.Name,
			Description: fi.Description,
			Tools:       fi.Tools,
			Keywords:    fi.Keywords,
		}
		for _, fp := range fi.Parameters {
			required := true
			if fp.Required != nil {
				required = *fp.Required
			}
			in.Parameters = append(in.Parameters, ParamSpec{
				Name:        fp.Name,
				Type:        fp.Type,
				Question:    fp.Question,
				Description: fp.Description,
				Required:    required,
			})
		}
		intents = append(intents, in)
	}
	return New(intents, f.Tools)
}

// Marshal renders a registry in the Load format.
func Marshal(r *Registry) ([]byte, error) {
	out := struct {
		Tools   []ToolSpec   `yaml:"tools"`
		Intents []IntentSpec `yaml:"intents"`
	}{Tools: r.Tools(), Intents: r.Intents()}
	return yaml.Marshal(out)
}
