package scanner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxSkillMDBytes = 2 << 20 // 2 MiB

// skillFrontmatter is the declared YAML shape of a SKILL.md header.
type skillFrontmatter struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Version         string   `yaml:"version"`
	RoutingKeywords []string `yaml:"routing_keywords"`
	Intents         []string `yaml:"intents"`
	Authors         []string `yaml:"authors"`
}

// parseSkillMD splits SKILL.md into frontmatter and body and unmarshals the
// frontmatter. It never touches the filesystem itself so it can be unit
// tested against literal strings.
func parseSkillMD(raw []byte) (skillFrontmatter, string, error) {
	if len(raw) > maxSkillMDBytes {
		return skillFrontmatter{}, "", fmt.Errorf("SKILL.md too large (max %d bytes)", maxSkillMDBytes)
	}

	fm, body, has, err := splitFrontmatter(string(raw))
	if err != nil {
		return skillFrontmatter{}, "", err
	}
	if !has {
		return skillFrontmatter{}, "", errors.New("SKILL.md must contain YAML frontmatter")
	}

	var fr skillFrontmatter
	if err := yaml.Unmarshal([]byte(fm), &fr); err != nil {
		return skillFrontmatter{}, "", fmt.Errorf("invalid frontmatter YAML: %w", err)
	}
	fr.Name = strings.TrimSpace(fr.Name)
	fr.Description = strings.TrimSpace(fr.Description)

	if err := validateName(fr.Name); err != nil {
		return skillFrontmatter{}, "", err
	}
	if err := validateDescription(fr.Description); err != nil {
		return skillFrontmatter{}, "", err
	}

	return fr, strings.TrimLeft(body, "\r\n"), nil
}

func splitFrontmatter(s string) (frontmatter, body string, has bool, err error) {
	br := bufio.NewReader(strings.NewReader(s))

	first, ferr := br.ReadString('\n')
	if ferr != nil && !errors.Is(ferr, io.EOF) {
		return "", "", false, fmt.Errorf("read first line: %w", ferr)
	}
	first = strings.TrimRight(first, "\r\n")
	if strings.TrimSpace(first) != "---" {
		return "", s, false, nil
	}

	var fmLines []string
	foundEnd := false
	for {
		line, lerr := br.ReadString('\n')
		if lerr != nil && !errors.Is(lerr, io.EOF) {
			return "", "", false, fmt.Errorf("read frontmatter line: %w", lerr)
		}
		lineTrim := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(lineTrim) == "---" {
			foundEnd = true
			break
		}
		fmLines = append(fmLines, lineTrim)
		if errors.Is(lerr, io.EOF) {
			break
		}
	}
	if !foundEnd {
		return "", "", false, errors.New("unterminated frontmatter (missing closing ---)")
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return "", "", false, fmt.Errorf("read body: %w", err)
	}
	return strings.Join(fmLines, "\n"), string(rest), true, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("frontmatter.name is required")
	}
	if len(name) > 64 {
		return errors.New("frontmatter.name too long (max 64)")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return errors.New("frontmatter.name must not start or end with '-'")
	}
	if strings.Contains(name, "--") {
		return errors.New("frontmatter.name must not contain consecutive '--'")
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return fmt.Errorf("frontmatter.name contains invalid character %q", string(r))
	}
	return nil
}

func validateDescription(desc string) error {
	if desc == "" {
		return errors.New("frontmatter.description is required")
	}
	if len(desc) > 1024 {
		return errors.New("frontmatter.description too long (max 1024)")
	}
	return nil
}
