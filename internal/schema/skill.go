package schema

// SkillInfo describes one discovered skill directory.
type SkillInfo struct {
	Name   string
	Path   string // absolute path to SKILL.md
	Source string // "workspace" | "builtin"
}
