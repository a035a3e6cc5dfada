package config

import (
	"fmt"
	"os"
	"regexp"

	yaml "gopkg.in/yaml.v2"
)

const DefaultProjectFile = "project.pj"
const DefaultBranch = "main"

// BranchRename overrides the sanitized branch name (spec 4.8) produced for
// any MKSSI branch whose name matches Name, replacing it with Rename.
type BranchRename struct {
	Name   string `yaml:"name"`   // regex matched against the sanitized branch name
	Rename string `yaml:"rename"` // replacement, passed to regexp.ReplaceAllString
}

// ExecutableOverride forces the executable bit for paths matching Pattern,
// overriding the §4.4 shebang/extension/ELF heuristic where it is known
// to be wrong for a given tree (e.g. a checked-in binary with no ELF
// magic, or a script without one of the recognised extensions).
type ExecutableOverride struct {
	Pattern    string `yaml:"pattern"` // regex matched against the canonical path
	Executable bool   `yaml:"executable"`
}

// ReBranchRename is BranchRename with its pattern pre-compiled.
type ReBranchRename struct {
	Rename string
	RePath *regexp.Regexp
}

// ReExecutableOverride is ExecutableOverride with its pattern pre-compiled.
type ReExecutableOverride struct {
	Executable bool
	RePath     *regexp.Regexp
}

// Config holds the options that aren't already covered by a CLI flag:
// anything the operator would otherwise need to repeat across many runs.
type Config struct {
	DefaultBranch       string               `yaml:"default_branch"`
	BranchRenames       []BranchRename       `yaml:"branch_renames"`
	ExecutableOverrides []ExecutableOverride `yaml:"executable_overrides"`

	ReBranchRenames       []ReBranchRename
	ReExecutableOverrides []ReExecutableOverride
}

// Unmarshal parses config, applying defaults and compiling every regex
// pattern it contains.
func Unmarshal(config []byte) (*Config, error) {
	cfg := &Config{DefaultBranch: DefaultBranch}
	if err := yaml.Unmarshal(config, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads and parses a YAML config file.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

func (c *Config) compile() error {
	for _, br := range c.BranchRenames {
		re, err := regexp.Compile(br.Name)
		if err != nil {
			return fmt.Errorf("failed to parse '%s' as a regex", br.Name)
		}
		c.ReBranchRenames = append(c.ReBranchRenames, ReBranchRename{Rename: br.Rename, RePath: re})
	}
	for _, eo := range c.ExecutableOverrides {
		re, err := regexp.Compile(eo.Pattern)
		if err != nil {
			return fmt.Errorf("failed to parse '%s' as a regex", eo.Pattern)
		}
		c.ReExecutableOverrides = append(c.ReExecutableOverrides, ReExecutableOverride{Executable: eo.Executable, RePath: re})
	}
	return nil
}

// ApplyBranchRename returns name rewritten by the first matching rule, or
// name unchanged if none match.
func (c *Config) ApplyBranchRename(name string) string {
	for _, r := range c.ReBranchRenames {
		if r.RePath.MatchString(name) {
			return r.RePath.ReplaceAllString(name, r.Rename)
		}
	}
	return name
}

// ExecutableOverrideFor reports whether path matches an executable-bit
// override rule, and the forced value if so.
func (c *Config) ExecutableOverrideFor(path string) (bool, bool) {
	for _, r := range c.ReExecutableOverrides {
		if r.RePath.MatchString(path) {
			return r.Executable, true
		}
	}
	return false, false
}
