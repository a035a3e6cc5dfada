package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyConfig(t *testing.T) {
	cfg := loadOrFail(t, "")
	assert.Equal(t, DefaultBranch, cfg.DefaultBranch)
	assert.Empty(t, cfg.BranchRenames)
	assert.Empty(t, cfg.ExecutableOverrides)
}

func TestBranchRename(t *testing.T) {
	const cfgText = `
branch_renames:
- name: "^release/(.*)"
  rename: "rel-$1"
`
	cfg := loadOrFail(t, cfgText)
	require.Len(t, cfg.ReBranchRenames, 1)
	assert.Equal(t, "rel-1.2", cfg.ApplyBranchRename("release/1.2"))
	assert.Equal(t, "trunk", cfg.ApplyBranchRename("trunk"))
}

func TestExecutableOverride(t *testing.T) {
	const cfgText = `
executable_overrides:
- pattern: "\\.run$"
  executable: true
- pattern: "\\.dat$"
  executable: false
`
	cfg := loadOrFail(t, cfgText)
	require.Len(t, cfg.ReExecutableOverrides, 2)

	exec, matched := cfg.ExecutableOverrideFor("tools/build.run")
	assert.True(t, matched)
	assert.True(t, exec)

	exec, matched = cfg.ExecutableOverrideFor("data/seed.dat")
	assert.True(t, matched)
	assert.False(t, exec)

	_, matched = cfg.ExecutableOverrideFor("src/main.go")
	assert.False(t, matched)
}

func TestBadRegex(t *testing.T) {
	const cfgText = `
branch_renames:
- name: "main.*["
  rename: "x"
`
	_, err := Unmarshal([]byte(cfgText))
	if err == nil {
		t.Fatalf("expected regex error, got none")
	}
}

func loadOrFail(t *testing.T, cfgText string) *Config {
	cfg, err := Unmarshal([]byte(cfgText))
	if err != nil {
		t.Fatalf("failed to read config: %v", err.Error())
	}
	return cfg
}
