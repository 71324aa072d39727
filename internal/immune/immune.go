// Package immune implements the Immune System's controller: the pipeline
// that decides whether a candidate skill, dropped into a quarantine
// directory, is safe to promote into the live skills root.
//
// The pipeline is strictly ordered — static validation, then dynamic
// execution, then promotion, then a scoped resync — and stops at the first
// stage that fails. A candidate that fails either gate is left in
// quarantine with a recorded rejection reason; nothing under the active
// skills root is touched until both gates pass.
package immune

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flexigpt/skillcore-go/internal/pathutil"
	"github.com/flexigpt/skillcore-go/internal/sandbox"
	"github.com/flexigpt/skillcore-go/internal/validator"
	"github.com/flexigpt/skillcore-go/spec"
)

// Syncer is the subset of the Sync Engine the controller drives after a
// successful promotion: a resync scoped to just the promoted skill.
type Syncer interface {
	Sync(ctx context.Context, changeset []string) (spec.SyncResult, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithSandboxInput sets the input string passed to a Go-source candidate's
// Run function during the dynamic gate. Defaults to the empty string.
func WithSandboxInput(input string) Option {
	return func(c *Controller) { c.sandboxInput = input }
}

// Controller runs candidate skills through the static-then-dynamic admission
// pipeline and promotes survivors into the active skills root.
type Controller struct {
	quarantineRoot string
	activeRoot     string
	sandbox        *sandbox.Sandbox
	syncer         Syncer
	logger         *slog.Logger
	sandboxInput   string
}

// New builds a Controller. Candidates are read from quarantineRoot/<name>/
// and, on promotion, moved to activeRoot/<name>/.
func New(quarantineRoot, activeRoot string, sb *sandbox.Sandbox, syncer Syncer, opts ...Option) *Controller {
	c := &Controller{
		quarantineRoot: quarantineRoot,
		activeRoot:     activeRoot,
		sandbox:        sb,
		syncer:         syncer,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitCandidate runs the full admission pipeline for the skill named
// skillName sitting under the quarantine root.
func (c *Controller) SubmitCandidate(ctx context.Context, skillName string) (spec.ImmuneReport, error) {
	report := spec.ImmuneReport{
		ID:            uuid.NewString(),
		SchemaVersion: spec.ImmuneReportSchemaVersion,
		SkillName:     skillName,
		CreatedAt:     time.Now().UTC(),
	}

	candidateDir, err := pathutil.JoinUnderRoot(c.quarantineRoot, skillName)
	if err != nil {
		report.RejectionReason = fmt.Sprintf("invalid candidate name: %v", err)
		return report, nil
	}
	report.Path = candidateDir

	scriptsDir, err := pathutil.JoinUnderRoot(candidateDir, "scripts")
	if err != nil {
		report.RejectionReason = fmt.Sprintf("invalid scripts dir: %v", err)
		return report, nil
	}
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		report.RejectionReason = fmt.Sprintf("read scripts dir: %v", err)
		return report, nil
	}

	static, err := c.runStatic(scriptsDir, entries)
	if err != nil {
		return spec.ImmuneReport{}, spec.NewError(spec.KindInternal, "immune.SubmitCandidate", err)
	}
	report.Static = static
	if !static.Passed {
		report.RejectionReason = "static validation failed"
		c.logger.Info("immune: candidate rejected at static gate", "skill", skillName, "violations", len(static.Violations))
		return report, nil
	}

	dynamic, err := c.runDynamic(ctx, scriptsDir, entries)
	if err != nil && !dynamic.Unavailable {
		return spec.ImmuneReport{}, spec.NewError(spec.KindInternal, "immune.SubmitCandidate", err)
	}
	report.Dynamic = dynamic
	if dynamic.Unavailable {
		report.RejectionReason = "dynamic sandbox unavailable"
		return report, spec.NewError(spec.KindSandboxUnavailable, "immune.SubmitCandidate", err)
	}
	if !dynamic.Passed {
		report.RejectionReason = "dynamic execution failed"
		c.logger.Info("immune: candidate rejected at dynamic gate", "skill", skillName, "exit_code", dynamic.ExitCode)
		return report, nil
	}

	if err := c.promote(skillName); err != nil {
		report.RejectionReason = fmt.Sprintf("promotion failed: %v", err)
		return report, nil
	}
	report.Promoted = true

	if _, err := c.syncer.Sync(ctx, []string{skillName}); err != nil {
		c.logger.Error("immune: post-promotion sync failed", "skill", skillName, "error", err)
	}

	c.logger.Info("immune: candidate promoted", "skill", skillName)
	return report, nil
}

// runStatic applies the deny-list AST scan to every .go candidate in
// scriptsDir. Shell/Python candidates have no equivalent static scan here
// and are gated only by the dynamic sandbox's isolated-subprocess
// execution; they are not silently admitted; runDynamic always runs next.
func (c *Controller) runStatic(scriptsDir string, entries []os.DirEntry) (spec.StaticOutcome, error) {
	combined := spec.StaticOutcome{Passed: true}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) != ".go" {
			c.logger.Debug("immune: static gate has no scan for this candidate kind, relying on dynamic sandbox", "file", e.Name())
			continue
		}
		path := filepath.Join(scriptsDir, e.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return spec.StaticOutcome{}, err
		}
		outcome, err := validator.ValidateSource(path, src)
		if err != nil {
			combined.Passed = false
			combined.Violations = append(combined.Violations, spec.Violation{
				RuleID:      "parse-error",
				Description: err.Error(),
				Snippet:     e.Name(),
			})
			continue
		}
		if !outcome.Passed {
			combined.Passed = false
		}
		combined.Violations = append(combined.Violations, outcome.Violations...)
	}
	return combined, nil
}

func (c *Controller) runDynamic(ctx context.Context, scriptsDir string, entries []os.DirEntry) (spec.DynamicOutcome, error) {
	var last spec.DynamicOutcome
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(scriptsDir, e.Name())
		var outcome spec.DynamicOutcome
		var err error
		if filepath.Ext(e.Name()) == ".go" {
			src, readErr := os.ReadFile(path)
			if readErr != nil {
				return spec.DynamicOutcome{}, readErr
			}
			outcome, err = c.sandbox.RunGoSource(ctx, string(src), c.sandboxInput)
		} else {
			outcome, err = c.sandbox.RunScript(ctx, path, nil)
		}
		if err != nil {
			return spec.DynamicOutcome{Unavailable: true}, err
		}
		last = outcome
		if !outcome.Passed {
			return outcome, nil
		}
	}
	return last, nil
}

// promote moves the quarantined skill directory into the active skills
// root. A rename is attempted first since both roots are typically on the
// same filesystem; it falls back to nothing fancier, since cross-device
// promotion is not a supported deployment shape.
func (c *Controller) promote(skillName string) error {
	src := filepath.Join(c.quarantineRoot, skillName)
	dst := filepath.Join(c.activeRoot, skillName)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("skill %q already present in active root", skillName)
	}
	if err := os.MkdirAll(c.activeRoot, 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// ListCandidates returns the names of every skill directory currently
// sitting in quarantine, in lexical order.
func (c *Controller) ListCandidates() ([]string, error) {
	entries, err := os.ReadDir(c.quarantineRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
