// Package generate asks a chat model for the page and its README.
package generate

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/yokitheyo/pagesmith/internal/attachment"
)

const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	model  model.BaseChatModel
	logger zerolog.Logger
}

// New connects to Gemini through its OpenAI-compatible endpoint.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "configure chat model")
	}
	return NewWithModel(m, logger), nil
}

func NewWithModel(m model.BaseChatModel, logger zerolog.Logger) *Client {
	return &Client{model: m, logger: logger}
}

func (c *Client) HTML(ctx context.Context, brief string, files []attachment.File, checks []string) (string, error) {
	return c.generate(ctx, "html", htmlTmpl, htmlPrompt{
		Brief:       brief,
		Attachments: attachment.Describe(files),
		Checks:      checks,
	})
}

func (c *Client) Readme(ctx context.Context, brief, html string) (string, error) {
	return c.generate(ctx, "readme", readmeTmpl, readmePrompt{Brief: brief, HTML: html})
}

func (c *Client) ReviseHTML(ctx context.Context, brief, existing string, files []attachment.File, checks []string) (string, error) {
	return c.generate(ctx, "revise-html", htmlTmpl, htmlPrompt{
		Brief:       brief,
		Existing:    existing,
		Attachments: attachment.Describe(files),
		Checks:      checks,
	})
}

func (c *Client) ReviseReadme(ctx context.Context, brief, existing, html string) (string, error) {
	return c.generate(ctx, "revise-readme", readmeTmpl, readmePrompt{Brief: brief, Existing: existing, HTML: html})
}

func (c *Client) generate(ctx context.Context, kind string, t *template.Template, data any) (string, error) {
	prompt, err := render(t, data)
	if err != nil {
		return "", errors.Wrapf(err, "render %s prompt", kind)
	}
	start := time.Now()
	msg, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		c.logger.Error().Err(err).Str("kind", kind).Msg("model generation failed")
		return "", errors.Wrapf(err, "generate %s", kind)
	}
	if msg == nil {
		return "", errors.Errorf("generate %s: model returned no message", kind)
	}
	out := Clean(msg.Content)
	c.logger.Debug().Str("kind", kind).Int("chars", len(out)).Dur("took", time.Since(start)).Msg("model generation finished")
	return out, nil
}

// Clean trims whitespace and removes one markdown fence wrapping the output.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	body := s[nl+1:]
	body = strings.TrimSuffix(strings.TrimRight(body, " \t\n"), "```")
	return strings.TrimSpace(body)
}
