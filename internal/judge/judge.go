// Package judge rates the visual design of a homepage screenshot using the
// Anthropic vision API. The rating is an opinion, not a measurement: callers
// receive whatever number the model produced, clamped nowhere, and decide for
// themselves how much weight it deserves.
package judge

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/signals"
	"github.com/leadfoundry/siteauditor/internal/telemetry"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
	maxAPIRetries    = 2
)

// visualPrompt asks for a design verdict on a CPA-firm homepage. The strict
// JSON shape keeps parsing trivial; parse.go handles models that wrap the
// object in prose anyway.
const visualPrompt = `You are reviewing the homepage screenshot of an accountant / CPA firm website.

Judge the visual design on these axes:
1. Overall impression: modern and professional, or dated?
2. Visual hierarchy: clear sections and a focal point, or a wall of content?
3. Color and typography: appropriate for a financial services firm?
4. Imagery and spacing: professional photography, sensible white space?

Rate the design from 1 to 10:
- 1-3: severely outdated or unprofessional
- 4-6: acceptable but visibly behind current standards
- 7-8: good, modern design
- 9-10: excellent, highly polished

Reply with ONLY a JSON object in exactly this shape, no other text:
{"rating": <number>, "rationale": "<2-3 sentence assessment>"}`

// Config controls the Anthropic judge.
type Config struct {
	// APIKey authenticates against the Anthropic API. Required.
	APIKey string
	// Model overrides the default vision model.
	Model string
	// MaxTokens bounds the reply length.
	MaxTokens int64
	// Timeout bounds one judgment call end to end.
	Timeout time.Duration
	// RequestsPerMinute paces calls across concurrent audits. Zero means
	// unpaced.
	RequestsPerMinute int
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// completer is the slice of the Anthropic client the judge uses. Narrow on
// purpose so tests can substitute canned replies.
type completer interface {
	complete(ctx context.Context, model string, maxTokens int64, screenshotB64 string) (string, error)
}

// Anthropic judges screenshots with the Messages API.
type Anthropic struct {
	cfg     Config
	log     *zap.Logger
	api     completer
	limiter *rate.Limiter
}

var _ audit.VisionJudge = (*Anthropic)(nil)

// New builds a judge. The API key must be set; wire Disabled instead when it
// is not.
func New(cfg Config, log *zap.Logger) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("judge: api key is required")
	}
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(maxAPIRetries),
	)
	return &Anthropic{
		cfg:     cfg,
		log:     log,
		api:     &anthropicAPI{client: client},
		limiter: limiter,
	}, nil
}

// Judge submits the screenshot and parses the model's verdict. A reply that
// cannot be parsed is a judgment-level failure, not an error: the audit keeps
// going and the visual category reports it.
func (a *Anthropic) Judge(ctx context.Context, screenshot []byte) (signals.Judgment, error) {
	if len(screenshot) == 0 {
		return signals.Unavailable("no screenshot captured"), nil
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return signals.Judgment{}, fmt.Errorf("judge pacing: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	encoded := base64.StdEncoding.EncodeToString(screenshot)
	reply, err := a.api.complete(ctx, a.cfg.Model, a.cfg.MaxTokens, encoded)
	if err != nil {
		telemetry.ObserveJudgeRequest("error")
		return signals.Judgment{}, fmt.Errorf("vision request: %w", err)
	}

	judgment, ok := parseJudgment(reply)
	if !ok {
		telemetry.ObserveJudgeRequest("unparseable")
		a.log.Warn("visual judgment reply not parseable",
			zap.String("model", a.cfg.Model),
			zap.Int("reply_bytes", len(reply)))
		return signals.Errored("unparseable visual judgment"), nil
	}

	telemetry.ObserveJudgeRequest("ok")
	a.log.Debug("visual judgment obtained",
		zap.Float64("rating", judgment.Rating),
		zap.Duration("elapsed", time.Since(start)))
	return judgment, nil
}

// anthropicAPI adapts the SDK client to the completer seam.
type anthropicAPI struct {
	client anthropic.Client
}

func (c *anthropicAPI) complete(ctx context.Context, model string, maxTokens int64, screenshotB64 string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", screenshotB64),
				anthropic.NewTextBlock(visualPrompt),
			),
		},
	})
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
