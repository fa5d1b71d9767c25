package config

import (
	"fmt"
	"os"

	"github.com/ashureev/outreach-agent/internal/domain"
	"gopkg.in/yaml.v3"
)

// FilterConfig holds the process-wide contact filter settings.
type FilterConfig struct {
	Whitelist    domain.NameSet
	Blacklist    domain.NameSet
	CooldownDays int
}

// contactsFile models the optional CONTACTS_FILE document.
type contactsFile struct {
	Whitelist    []string `yaml:"whitelist"`
	Blacklist    []string `yaml:"blacklist"`
	CooldownDays *int     `yaml:"cooldown_days,omitempty"`
}

// loadFilter merges the comma-separated env lists with the optional YAML
// contacts file. A cooldown_days value in the file takes precedence.
func loadFilter(whitelist, blacklist string, cooldownDays int, path string) (FilterConfig, error) {
	fc := FilterConfig{
		Whitelist:    domain.NewNameSet(splitList(whitelist)...),
		Blacklist:    domain.NewNameSet(splitList(blacklist)...),
		CooldownDays: cooldownDays,
	}
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FilterConfig{}, &ValidationError{Field: "CONTACTS_FILE", Reason: fmt.Sprintf("read %s: %v", path, err)}
	}

	var doc contactsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return FilterConfig{}, &ValidationError{Field: "CONTACTS_FILE", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	for _, n := range doc.Whitelist {
		fc.Whitelist.Add(n)
	}
	for _, n := range doc.Blacklist {
		fc.Blacklist.Add(n)
	}
	if doc.CooldownDays != nil {
		fc.CooldownDays = *doc.CooldownDays
	}
	return fc, nil
}
