package extract

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/shpitdev/listing-enricher/internal/captcha"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// Profile holds the CSS selectors that map a results page onto listings. It is data so
// that selector maintenance does not need a rebuild.
type Profile struct {
	Results          string   `yaml:"results"`
	CardAnchor       string   `yaml:"card_anchor"`
	CardAnchorParent string   `yaml:"card_anchor_parent"`
	Cards            []string `yaml:"cards"`

	Name        []string `yaml:"name"`
	Rating      string   `yaml:"rating"`
	Reviews     string   `yaml:"reviews"`
	Address     string   `yaml:"address"`
	ProfileLink string   `yaml:"profile_link"`
	Pagination  string   `yaml:"pagination"`

	SkipHosts []string `yaml:"skip_hosts"`
	SkipNames []string `yaml:"skip_names"`

	Captcha captcha.Markers `yaml:"captcha"`
}

// DefaultProfile returns the embedded profile.
func DefaultProfile() Profile {
	var p Profile
	if err := yaml.Unmarshal(defaultProfileYAML, &p); err != nil {
		panic(fmt.Sprintf("extract: embedded profile is invalid: %v", err))
	}
	return p
}

// LoadProfile reads a YAML profile over the defaults. An empty path returns the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	path = strings.TrimSpace(path)
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read selector profile: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("parse selector profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("selector profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks that required selectors are present and that every selector parses.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Results) == "" {
		return fmt.Errorf("results selector is required")
	}
	if strings.TrimSpace(p.CardAnchor) == "" && len(p.Cards) == 0 {
		return fmt.Errorf("card_anchor or cards is required")
	}
	if strings.TrimSpace(p.CardAnchor) != "" && strings.TrimSpace(p.CardAnchorParent) == "" {
		return fmt.Errorf("card_anchor_parent is required with card_anchor")
	}

	check := map[string]string{
		"results":            p.Results,
		"card_anchor":        p.CardAnchor,
		"card_anchor_parent": p.CardAnchorParent,
		"rating":             p.Rating,
		"reviews":            p.Reviews,
		"address":            p.Address,
		"profile_link":       p.ProfileLink,
		"pagination":         p.Pagination,
	}
	for i, s := range p.Cards {
		check[fmt.Sprintf("cards[%d]", i)] = s
	}
	for i, s := range p.Name {
		check[fmt.Sprintf("name[%d]", i)] = s
	}
	for i, s := range p.Captcha.Selectors {
		check[fmt.Sprintf("captcha.selectors[%d]", i)] = s
	}
	for field, sel := range check {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("%s: invalid selector %q: %w", field, sel, err)
		}
	}
	return nil
}
