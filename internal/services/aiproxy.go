package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/observability"
	"github.com/rohits-web03/nimbus/internal/upstream"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// SystemPrompt opens every chat completion request.
const SystemPrompt = "You are a helpful AI assistant."

const maxPollBackoff = 10 * time.Second

var errImageNotReady = errors.New("image not ready")

// ChatCompleter sends a full conversation to a chat completion endpoint and
// returns the assistant reply.
type ChatCompleter interface {
	Complete(ctx context.Context, model string, messages []models.Turn) (string, error)
}

// ImageGenerator submits image jobs and reports their progress.
type ImageGenerator interface {
	Submit(ctx context.Context, prompt string) (jobID string, err error)
	Status(ctx context.Context, jobID string) (done bool, image string, err error)
}

type AIConfig struct {
	ProModel     string
	DefaultModel string
	PollInterval time.Duration
	MaxWait      time.Duration
}

type ChatReply struct {
	Reply        string        `json:"reply"`
	Conversation []models.Turn `json:"conversation"`
}

// AIProxy gates the chat and image endpoints by package entitlement.
type AIProxy struct {
	chat     ChatCompleter
	images   ImageGenerator
	sessions *ChatStore
	cfg      AIConfig
	log      *zap.Logger
	metrics  *observability.Metrics
}

func NewAIProxy(chat ChatCompleter, images ImageGenerator, sessions *ChatStore, cfg AIConfig, log *zap.Logger, metrics *observability.Metrics) *AIProxy {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}
	return &AIProxy{chat: chat, images: images, sessions: sessions, cfg: cfg, log: log, metrics: metrics}
}

// ModelFor picks the chat model for a package.
func (p *AIProxy) ModelFor(pkg *models.Package) string {
	if pkg != nil && strings.EqualFold(pkg.Name, "pro") {
		return p.cfg.ProModel
	}
	return p.cfg.DefaultModel
}

// Chat appends message to the user's transcript, asks the model and stores
// the reply. Upstream failures leave the stored transcript untouched.
func (p *AIProxy) Chat(ctx context.Context, user *models.User, message string) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperr.Validation("Message required")
	}
	if user.Package == nil || !user.Package.ChatEnabled {
		return nil, apperr.Forbidden("Chat AI not enabled for your package")
	}

	model := p.ModelFor(user.Package)
	var reply string
	conv, err := p.sessions.Update(ctx, user.ID, func(turns []models.Turn) ([]models.Turn, error) {
		turns = lastTurns(append(turns, models.Turn{Role: "user", Content: message}), MaxTurns)

		msgs := make([]models.Turn, 0, len(turns)+1)
		msgs = append(msgs, models.Turn{Role: "system", Content: SystemPrompt})
		msgs = append(msgs, turns...)

		r, err := p.chat.Complete(ctx, model, msgs)
		p.observe("chat", err)
		if err != nil {
			return nil, err
		}
		reply = r
		return append(turns, models.Turn{Role: "assistant", Content: r}), nil
	})
	if err != nil {
		return nil, err
	}
	return &ChatReply{Reply: reply, Conversation: conv}, nil
}

func (p *AIProxy) authorizeImage(user *models.User, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return apperr.Validation("Prompt required")
	}
	if user.Package == nil || !user.Package.ImageGenEnabled {
		return apperr.Forbidden("Image generation not enabled for your package")
	}
	return nil
}

// GenerateImage submits prompt and blocks until the image is ready or
// MaxWait passes.
func (p *AIProxy) GenerateImage(ctx context.Context, user *models.User, prompt string) (string, error) {
	if err := p.authorizeImage(user, prompt); err != nil {
		return "", err
	}
	return p.runImage(ctx, prompt)
}

func (p *AIProxy) runImage(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.MaxWait)
	defer cancel()

	jobID, err := p.images.Submit(ctx, prompt)
	p.observe("image_submit", err)
	if err != nil {
		return "", err
	}
	if jobID == "" {
		return "", apperr.Upstream("No job ID returned", nil)
	}

	b := retry.NewExponential(p.cfg.PollInterval)
	b = retry.WithCappedDuration(maxPollBackoff, b)

	var image string
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		done, img, err := p.images.Status(ctx, jobID)
		if err != nil {
			if !upstream.Transient(err) {
				return err
			}
			p.log.Debug("image status poll failed", zap.String("job_id", jobID), zap.Error(err))
			return retry.RetryableError(err)
		}
		if !done {
			return retry.RetryableError(errImageNotReady)
		}
		image = img
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.observe("image_poll", err)
			return "", apperr.Upstream("image generation timed out", err)
		}
		p.observe("image_poll", err)
		return "", err
	}
	if image == "" {
		p.observe("image_poll", errImageNotReady)
		return "", apperr.Upstream("No image returned", nil)
	}
	p.observe("image_poll", nil)
	return image, nil
}

func (p *AIProxy) observe(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.UpstreamCalls.WithLabelValues(service, outcome).Inc()
}
