package council

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// Template names.
const (
	tmplOpinionSystem       = "opinion_system"
	tmplReviewSystem        = "review_system"
	tmplReviewUser          = "review_user"
	tmplReviewBatchedSystem = "review_batched_system"
	tmplReviewBatchedUser   = "review_batched_user"
	tmplSynthesisSystem     = "synthesis_system"
	tmplSynthesisUser       = "synthesis_user"
)

// PromptRenderer renders the stage prompts from embedded templates.
type PromptRenderer struct {
	templates map[string]*template.Template
}

// NewPromptRenderer parses every embedded template.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{
		templates: make(map[string]*template.Template),
	}
	if err := r.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return r, nil
}

func (r *PromptRenderer) loadTemplates() error {
	return fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}

		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimSuffix(strings.TrimPrefix(path, "prompts/"), ".md.tmpl")
		tmpl, err := template.New(name).Funcs(template.FuncMap{
			"join": strings.Join,
		}).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}

		r.templates[name] = tmpl
		return nil
	})
}

// OpinionParams feeds the opinion system prompt.
type OpinionParams struct {
	AgentName string
}

// ReviewParams feeds the pairwise review prompts.
type ReviewParams struct {
	ReviewerName string
	Query        string
	Response     string
}

// BatchedResponse is one anonymized opinion shown to a batched reviewer.
type BatchedResponse struct {
	AgentID string
	Content string
}

// BatchedReviewParams feeds the batched review prompts.
type BatchedReviewParams struct {
	ReviewerName string
	ReviewerID   string
	Query        string
	Responses    []BatchedResponse
	TargetIDs    []string
}

// SynthesisParams feeds the synthesis user prompt.
type SynthesisParams struct {
	Query    string
	Opinions string
	Rankings string
}

// RenderOpinionSystem renders the persona prompt of one agent.
func (r *PromptRenderer) RenderOpinionSystem(p OpinionParams) (string, error) {
	return r.render(tmplOpinionSystem, p)
}

// RenderReview renders the system and user prompts of one pairwise evaluation.
func (r *PromptRenderer) RenderReview(p ReviewParams) (system, user string, err error) {
	if system, err = r.render(tmplReviewSystem, p); err != nil {
		return "", "", err
	}
	if user, err = r.render(tmplReviewUser, p); err != nil {
		return "", "", err
	}
	return system, user, nil
}

// RenderBatchedReview renders the system and user prompts of one batched reviewer turn.
func (r *PromptRenderer) RenderBatchedReview(p BatchedReviewParams) (system, user string, err error) {
	if system, err = r.render(tmplReviewBatchedSystem, p); err != nil {
		return "", "", err
	}
	if user, err = r.render(tmplReviewBatchedUser, p); err != nil {
		return "", "", err
	}
	return system, user, nil
}

// RenderSynthesis renders the chairman prompts.
func (r *PromptRenderer) RenderSynthesis(p SynthesisParams) (system, user string, err error) {
	if system, err = r.render(tmplSynthesisSystem, nil); err != nil {
		return "", "", err
	}
	if user, err = r.render(tmplSynthesisUser, p); err != nil {
		return "", "", err
	}
	return system, user, nil
}

func (r *PromptRenderer) render(name string, data interface{}) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
