package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models staffline.yml. It carries the reference catalog: job profiles
// (with AI-backed markers), seniority levels, and the language/expertise
// vocabularies requests and actors draw from.
type Config struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`
	Catalog struct {
		Seniorities []string                `yaml:"seniorities"`
		Languages   []string                `yaml:"languages"`
		Expertise   []string                `yaml:"expertise"`
		Profiles    map[string]ProfileEntry `yaml:"profiles"`
	} `yaml:"catalog"`
}

type ProfileEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	AI          bool   `yaml:"ai"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with stf project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if len(c.Catalog.Profiles) == 0 {
		return fmt.Errorf("config.catalog.profiles is required")
	}
	for id, p := range c.Catalog.Profiles {
		if id == "" {
			return fmt.Errorf("config.catalog.profiles contains empty profile id")
		}
		if p.Name == "" {
			return fmt.Errorf("profile %s has empty name", id)
		}
	}
	if len(c.Catalog.Seniorities) == 0 {
		return fmt.Errorf("config.catalog.seniorities is required")
	}
	for _, s := range c.Catalog.Seniorities {
		switch s {
		case "junior", "intermediate", "senior":
		default:
			return fmt.Errorf("unknown seniority level %s", s)
		}
	}
	seen := map[string]bool{}
	for _, l := range c.Catalog.Languages {
		if l == "" {
			return fmt.Errorf("config.catalog.languages contains empty entry")
		}
		if seen[l] {
			return fmt.Errorf("duplicate language %s", l)
		}
		seen[l] = true
	}
	seen = map[string]bool{}
	for _, e := range c.Catalog.Expertise {
		if e == "" {
			return fmt.Errorf("config.catalog.expertise contains empty entry")
		}
		if seen[e] {
			return fmt.Errorf("duplicate expertise tag %s", e)
		}
		seen[e] = true
	}
	return nil
}

// HasSeniority reports whether the level is part of the catalog.
func (c *Config) HasSeniority(level string) bool {
	for _, s := range c.Catalog.Seniorities {
		if s == level {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "staffline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s

catalog:
  seniorities: [junior, intermediate, senior]

  languages: [EN, FR, DE, ES, IT]

  expertise:
    - SEO
    - Ads
    - Content
    - Analytics
    - Social
    - Branding
    - Email
    - CRO

  profiles:
    seo-consultant:
      name: "SEO Consultant"
      description: "Organic search strategy and execution"
    media-buyer:
      name: "Media Buyer"
      description: "Paid acquisition across ad platforms"
    content-strategist:
      name: "Content Strategist"
      description: "Editorial planning and content production"
    data-analyst:
      name: "Data Analyst"
      description: "Measurement, dashboards and attribution"
    community-manager:
      name: "Community Manager"
      description: "Social presence and audience engagement"
    growth-assistant:
      name: "Growth Assistant"
      description: "AI-backed generalist for routine growth tasks"
      ai: true
    copy-assistant:
      name: "Copy Assistant"
      description: "AI-backed drafting of short-form copy"
      ai: true
`
