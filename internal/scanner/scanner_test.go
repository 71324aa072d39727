package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, root, name, skillMD string, scripts map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, "scripts"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(skillMD), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, "scripts", name), []byte(body), 0o755); err != nil {
			t.Fatalf("write script: %v", err)
		}
	}
}

const gitSkillMD = `---
name: git
description: Git repository operations
version: "1.0"
routing_keywords:
  - git
  - repo
intents:
  - vcs
authors:
  - core-team
---

# git skill

Operates on the current repository.
`

const statusScript = `#!/bin/sh
# description: Show git status
# keywords: git, status
# @param verbose boolean default=false: include untracked files
git status
`

func TestScanBootstrap(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "git", gitSkillMD, map[string]string{"status.sh": statusScript})

	res, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(res.Skills) != 1 {
		t.Fatalf("len(Skills) = %d, want 1", len(res.Skills))
	}
	sk := res.Skills[0]
	if sk.Name != "git" || sk.Description != "Git repository operations" {
		t.Fatalf("skill = %+v", sk)
	}
	if len(sk.Tools) != 1 {
		t.Fatalf("len(Tools) = %d, want 1", len(sk.Tools))
	}
	tool := sk.Tools[0]
	if tool.ID() != "git.status" {
		t.Fatalf("tool.ID() = %q", tool.ID())
	}
	if tool.Description != "Show git status" {
		t.Fatalf("tool.Description = %q", tool.Description)
	}
	if len(tool.Keywords) != 2 {
		t.Fatalf("tool.Keywords = %v", tool.Keywords)
	}
	if len(tool.Arguments) != 1 || tool.Arguments[0].Name != "verbose" {
		t.Fatalf("tool.Arguments = %v", tool.Arguments)
	}
	if tool.Arguments[0].Required {
		t.Fatalf("argument with default must not be required")
	}
	if tool.ContentHash == "" {
		t.Fatalf("expected non-empty content hash")
	}
}

func TestScanSkipsMismatchedName(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "git", `---
name: not-git
description: broken
---
`, nil)

	res, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(res.Skills) != 0 {
		t.Fatalf("expected 0 skills, got %d", len(res.Skills))
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("expected 1 skipped entry, got %d", len(res.Skipped))
	}
}

func TestScanSkipsMissingDescription(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "writer", `---
name: writer
description: Write drafts
---
`, map[string]string{
		"draft.sh": "#!/bin/sh\necho nothing useful\n",
	})

	res, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(res.Skills) != 1 {
		t.Fatalf("expected skill to still be indexed, got %d", len(res.Skills))
	}
	if len(res.Skills[0].Tools) != 0 {
		t.Fatalf("expected the undocumented tool to be skipped, got %d tools", len(res.Skills[0].Tools))
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("expected 1 skipped file, got %d", len(res.Skipped))
	}
}

func TestParseSkillMDRequiresFrontmatter(t *testing.T) {
	_, _, err := parseSkillMD([]byte("no frontmatter here"))
	if err == nil {
		t.Fatalf("expected error for missing frontmatter")
	}
}
