// Package scanner walks a skills root and produces tool records without
// touching the index or manifest. It is a pure function of the directory's
// bytes: a parse failure on one file yields a SkippedFile, never an abort.
package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/flexigpt/skillcore-go/internal/manifest"
	"github.com/flexigpt/skillcore-go/spec"
)

const skillFileName = "SKILL.md"

var scriptExts = map[string]spec.ExecutionMode{
	".sh":   spec.ExecutionModeScript,
	".py":   spec.ExecutionModeScript,
	".go":   spec.ExecutionModeInline,
	".js":   spec.ExecutionModeScript,
	".ts":   spec.ExecutionModeScript,
}

// Result is the scanner's output for one root-level walk: every
// successfully parsed skill plus every file that could not be parsed.
type Result struct {
	Skills  []spec.Skill
	Skipped []spec.SkippedFile
}

// Scan walks the whole skills root. changeset, if non-empty, restricts the
// walk to skill directories containing at least one of the given paths,
// which must be relative to root — used by the sync engine for incremental
// resyncs.
func Scan(root string, changeset []string) (Result, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, spec.NewError(spec.KindInternal, "scanner.Scan", err)
	}

	var allowed map[string]bool
	if len(changeset) > 0 {
		allowed = map[string]bool{}
		for _, p := range changeset {
			allowed[firstComponent(p)] = true
		}
	}

	var res Result
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		if allowed != nil && !allowed[e.Name()] {
			continue
		}

		skillDir := filepath.Join(root, e.Name())
		skill, skipped, err := scanSkillDir(root, skillDir, e.Name())
		if err != nil {
			res.Skipped = append(res.Skipped, spec.SkippedFile{
				Path:   filepath.Join(e.Name(), skillFileName),
				Reason: err.Error(),
			})
			continue
		}
		res.Skills = append(res.Skills, skill)
		res.Skipped = append(res.Skipped, skipped...)
	}

	sort.Slice(res.Skills, func(i, j int) bool { return res.Skills[i].Name < res.Skills[j].Name })
	return res, nil
}

func firstComponent(rel string) string {
	rel = filepath.Clean(rel)
	parts := strings.SplitN(rel, string(filepath.Separator), 2)
	return parts[0]
}

func scanSkillDir(root, skillDir, dirName string) (spec.Skill, []spec.SkippedFile, error) {
	mdPath := filepath.Join(skillDir, skillFileName)
	raw, err := os.ReadFile(mdPath)
	if err != nil {
		return spec.Skill{}, nil, fmt.Errorf("read %s: %w", skillFileName, err)
	}

	fr, _, err := parseSkillMD(raw)
	if err != nil {
		return spec.Skill{}, nil, err
	}
	if fr.Name != dirName {
		return spec.Skill{}, nil, fmt.Errorf("frontmatter.name %q must match directory name %q", fr.Name, dirName)
	}

	skill := spec.Skill{
		Name:            fr.Name,
		Description:     fr.Description,
		Version:         fr.Version,
		RoutingKeywords: fr.RoutingKeywords,
		Intents:         fr.Intents,
		Authors:         fr.Authors,
		Path:            skillDir,
	}

	scriptsDir := filepath.Join(skillDir, "scripts")
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return skill, nil, nil
		}
		return spec.Skill{}, nil, fmt.Errorf("read scripts dir: %w", err)
	}

	var skipped []spec.SkippedFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		ext := filepath.Ext(e.Name())
		mode, ok := scriptExts[ext]
		if !ok {
			continue
		}

		scriptPath := filepath.Join(scriptsDir, e.Name())
		toolName := strings.TrimSuffix(e.Name(), ext)

		body, err := os.ReadFile(scriptPath)
		if err != nil {
			rel, _ := filepath.Rel(root, scriptPath)
			skipped = append(skipped, spec.SkippedFile{Path: rel, Reason: err.Error()})
			continue
		}

		tool, err := parseToolScript(fr.Name, toolName, scriptPath, mode, body)
		if err != nil {
			rel, _ := filepath.Rel(root, scriptPath)
			skipped = append(skipped, spec.SkippedFile{Path: rel, Reason: err.Error()})
			continue
		}
		tool.ContentHash = manifest.HashBytes(body)
		skill.Tools = append(skill.Tools, tool)
	}

	sort.Slice(skill.Tools, func(i, j int) bool { return skill.Tools[i].Name < skill.Tools[j].Name })
	return skill, skipped, nil
}

// Annotation grammar recognized in a leading comment block (shell "#" or
// Python "#" both use the same prefix character):
//
//	# description: one-line summary
//	# keywords: git, status
//	# @param path string required: file to inspect
//	# @param verbose boolean default=false: include diagnostics
var (
	descriptionRe = regexp.MustCompile(`^description:\s*(.+)$`)
	keywordsRe    = regexp.MustCompile(`^keywords:\s*(.+)$`)
	paramRe       = regexp.MustCompile(`^@param\s+(\S+)\s+(\S+)\s*(required)?\s*(?:default=(\S+))?\s*:\s*(.*)$`)
)

func parseToolScript(skillName, toolName, path string, mode spec.ExecutionMode, body []byte) (spec.Tool, error) {
	tool := spec.Tool{
		SkillName:     skillName,
		Name:          toolName,
		SourcePath:    path,
		EntryPoint:    toolName,
		ExecutionMode: mode,
	}

	var docLines []string
	sc := bufio.NewScanner(strings.NewReader(string(body)))
	inHeader := true
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if inHeader && trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#!") {
			continue // shebang: skip without leaving the header
		}
		commentText, isComment := stripCommentPrefix(trimmed)
		if !isComment {
			inHeader = false
			continue
		}
		if !inHeader {
			break
		}

		switch {
		case descriptionRe.MatchString(commentText):
			tool.Description = strings.TrimSpace(descriptionRe.FindStringSubmatch(commentText)[1])
		case keywordsRe.MatchString(commentText):
			raw := keywordsRe.FindStringSubmatch(commentText)[1]
			for _, kw := range strings.Split(raw, ",") {
				kw = strings.TrimSpace(strings.ToLower(kw))
				if kw != "" {
					tool.Keywords = append(tool.Keywords, kw)
				}
			}
		case paramRe.MatchString(commentText):
			m := paramRe.FindStringSubmatch(commentText)
			arg := spec.Argument{
				Name:        m[1],
				Kind:        normalizeKind(m[2]),
				Required:    m[3] == "required",
				Description: strings.TrimSpace(m[5]),
			}
			if m[4] != "" {
				arg.Default = inferDefault(arg.Kind, m[4])
				arg.Required = false
			}
			tool.Arguments = append(tool.Arguments, arg)
		default:
			docLines = append(docLines, commentText)
		}
	}
	if err := sc.Err(); err != nil {
		return spec.Tool{}, err
	}

	tool.Docstring = strings.TrimSpace(strings.Join(docLines, "\n"))
	if tool.Description == "" {
		if len(docLines) > 0 {
			tool.Description = strings.TrimSpace(docLines[0])
		} else {
			return spec.Tool{}, fmt.Errorf("tool %q: no description annotation or leading comment", toolName)
		}
	}
	return tool, nil
}

func stripCommentPrefix(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "#!"):
		return "", false // shebang, not a doc comment
	case strings.HasPrefix(line, "# "):
		return strings.TrimPrefix(line, "# "), true
	case strings.HasPrefix(line, "#"):
		return strings.TrimPrefix(line, "#"), true
	case strings.HasPrefix(line, "// "):
		return strings.TrimPrefix(line, "// "), true
	case strings.HasPrefix(line, "//"):
		return strings.TrimPrefix(line, "//"), true
	default:
		return "", false
	}
}

func normalizeKind(s string) spec.ArgKind {
	switch strings.ToLower(s) {
	case "integer", "int":
		return spec.ArgKindInteger
	case "boolean", "bool":
		return spec.ArgKindBoolean
	case "number", "float":
		return spec.ArgKindNumber
	case "array", "list":
		return spec.ArgKindArray
	case "object", "map":
		return spec.ArgKindObject
	default:
		return spec.ArgKindString
	}
}

func inferDefault(kind spec.ArgKind, raw string) any {
	switch kind {
	case spec.ArgKindInteger:
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case spec.ArgKindNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case spec.ArgKindBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}
