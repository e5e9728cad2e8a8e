package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const demoSkill = `---
description: Demo skill
always: true
---
# Demo

Use this for demonstrations.
`

func TestListSkillsWorkspaceShadowsBuiltin(t *testing.T) {
	ws := t.TempDir()
	builtin := t.TempDir()
	writeSkill(t, filepath.Join(ws, "skills"), "demo", demoSkill)
	writeSkill(t, builtin, "demo", "---\ndescription: builtin copy\n---\nbody")
	writeSkill(t, builtin, "extra", "---\ndescription: extra skill\n---\nbody")

	sl := NewSkillsLoader(ws, builtin)
	skills := sl.ListSkills(false)
	if len(skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(skills))
	}
	bySource := map[string]string{}
	for _, s := range skills {
		bySource[s.Name] = s.Source
	}
	if bySource["demo"] != "workspace" {
		t.Errorf("workspace skill should shadow builtin: %v", bySource)
	}
	if bySource["extra"] != "builtin" {
		t.Errorf("builtin skill missing: %v", bySource)
	}
}

func TestGetAlwaysSkills(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, filepath.Join(ws, "skills"), "demo", demoSkill)
	writeSkill(t, filepath.Join(ws, "skills"), "ondemand", "---\ndescription: manual\n---\nbody")

	sl := NewSkillsLoader(ws, "")
	always := sl.GetAlwaysSkills()
	if len(always) != 1 || always[0] != "demo" {
		t.Errorf("unexpected always skills: %v", always)
	}
}

func TestLoadSkillsForContextStripsFrontmatter(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, filepath.Join(ws, "skills"), "demo", demoSkill)

	sl := NewSkillsLoader(ws, "")
	out := sl.LoadSkillsForContext([]string{"demo", "missing"})
	if !strings.Contains(out, "### Skill: demo") {
		t.Errorf("skill header missing: %q", out)
	}
	if !strings.Contains(out, "Use this for demonstrations.") {
		t.Errorf("body missing: %q", out)
	}
	if strings.Contains(out, "description:") {
		t.Errorf("frontmatter leaked into context: %q", out)
	}
}

func TestBuildSkillsSummary(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, filepath.Join(ws, "skills"), "demo", demoSkill)

	sl := NewSkillsLoader(ws, "")
	summary := sl.BuildSkillsSummary()
	if !strings.Contains(summary, "<name>demo</name>") {
		t.Errorf("name missing: %q", summary)
	}
	if !strings.Contains(summary, "<description>Demo skill</description>") {
		t.Errorf("description missing: %q", summary)
	}
	if !strings.Contains(summary, `available="true"`) {
		t.Errorf("availability missing: %q", summary)
	}
}

func TestSkillWithUnmetRequirements(t *testing.T) {
	ws := t.TempDir()
	needy := "---\n" +
		"description: Needs things\n" +
		"metadata: '{\"tidelark\": {\"requires\": {\"env\": [\"TIDELARK_NO_SUCH_VAR\"]}}}'\n" +
		"---\nbody"
	writeSkill(t, filepath.Join(ws, "skills"), "needy", needy)
	t.Setenv("TIDELARK_NO_SUCH_VAR", "")

	sl := NewSkillsLoader(ws, "")
	if got := sl.ListSkills(true); len(got) != 0 {
		t.Errorf("unavailable skill not filtered: %v", got)
	}
	summary := sl.BuildSkillsSummary()
	if !strings.Contains(summary, `available="false"`) {
		t.Errorf("summary should mark unavailable: %q", summary)
	}
	if !strings.Contains(summary, "ENV: TIDELARK_NO_SUCH_VAR") {
		t.Errorf("missing requirement not listed: %q", summary)
	}
}

func TestBuildSkillsSummaryEmpty(t *testing.T) {
	sl := NewSkillsLoader(t.TempDir(), "")
	if got := sl.BuildSkillsSummary(); got != "" {
		t.Errorf("expected empty summary, got %q", got)
	}
}
