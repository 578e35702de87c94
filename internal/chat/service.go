package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/appgen/internal/ai"
	"github.com/suPer8Hu/appgen/internal/common"
	"github.com/suPer8Hu/appgen/internal/prompt"
	"github.com/suPer8Hu/appgen/internal/stream"
	"golang.org/x/sync/errgroup"
)

// StreamLocker serializes completion streams per chat.
type StreamLocker interface {
	TryLock(ctx context.Context, chatID string) (token string, ok bool, err error)
	Unlock(ctx context.Context, chatID, token string) error
}

type Options struct {
	// HelperModel serves the title and example-match stages for any model
	// that is not self-hosted.
	HelperModel     string
	VisionModel     string
	StageTimeout    time.Duration
	StreamMaxTokens int
}

type Service struct {
	repo     *Repo
	router   *ai.Router
	registry *ai.Registry
	locker   StreamLocker
	opts     Options
}

func NewService(repo *Repo, router *ai.Router, registry *ai.Registry, opts Options) *Service {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 90 * time.Second
	}
	if opts.StreamMaxTokens <= 0 {
		opts.StreamMaxTokens = 9000
	}
	return &Service{repo: repo, router: router, registry: registry, opts: opts}
}

// WithLocker enables per-chat stream locking.
func (s *Service) WithLocker(l StreamLocker) *Service {
	s.locker = l
	return s
}

type CreateInput struct {
	Prompt        string
	Model         string
	Quality       Quality
	ScreenshotURL string
}

type CreateResult struct {
	ChatID        string `json:"chat_id"`
	LastMessageID string `json:"last_message_id"`
}

func (in *CreateInput) normalize() error {
	in.Prompt = strings.TrimSpace(in.Prompt)
	in.Model = strings.TrimSpace(in.Model)
	in.ScreenshotURL = strings.TrimSpace(in.ScreenshotURL)
	if in.Quality == "" {
		in.Quality = QualityLow
	}
	if in.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if in.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if in.Quality != QualityHigh && in.Quality != QualityLow {
		return fmt.Errorf("%w: quality must be high or low", ErrInvalidRequest)
	}
	return nil
}

// complete runs one bounded, non-streaming stage call.
func (s *Service) complete(ctx context.Context, stage, model, chatID string, msgs []ai.Message, opts ...ai.CallOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StageTimeout)
	defer cancel()

	route := s.router.Resolve(model, chatID)
	p, err := s.registry.Get(ctx, route)
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}

	start := time.Now()
	out, err := p.Chat(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}
	slog.Debug("stage done", "stage", stage, "chat_id", chatID, "model", model,
		"backend", route.Backend, "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// CreateConversation turns a prompt into a chat seeded with the system and
// user messages code generation starts from. The chat row is written first;
// a later stage failure leaves it with an empty title.
func (s *Service) CreateConversation(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	selfHosted := s.router.IsSelfHosted(in.Model)
	if selfHosted && in.ScreenshotURL != "" {
		return nil, ErrScreenshotUnsupported
	}
	if selfHosted && in.Quality == QualityHigh {
		return nil, ErrArchitectUnsupported
	}

	chatID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	c := &Chat{
		ID:      chatID,
		Prompt:  in.Prompt,
		Model:   in.Model,
		Quality: in.Quality,
		Shadcn:  true,
	}
	if in.ScreenshotURL != "" {
		c.ScreenshotURL = &in.ScreenshotURL
	}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	log := slog.With("chat_id", chatID, "model", in.Model, "quality", in.Quality)
	log.Info("chat created")

	helper := s.opts.HelperModel
	if selfHosted {
		helper = in.Model
	}

	var title, example string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.complete(gctx, "title", helper, chatID, prompt.TitleMessages(in.Prompt))
		if err != nil {
			return err
		}
		title = prompt.ParseTitle(out, in.Prompt)
		return nil
	})
	g.Go(func() error {
		out, err := s.complete(gctx, "example", helper, chatID, prompt.ExampleMatchMessages(in.Prompt))
		if err != nil {
			return err
		}
		example = prompt.ParseExample(out)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("create conversation failed", "err", err)
		return nil, err
	}

	var description string
	if in.ScreenshotURL != "" {
		description, err = s.complete(ctx, "screenshot", s.opts.VisionModel, chatID, prompt.ScreenshotMessages(),
			ai.WithImageURL(in.ScreenshotURL),
			ai.WithTemperature(prompt.ScreenshotTemperature),
			ai.WithMaxTokens(prompt.ScreenshotMaxTokens),
		)
		if err != nil {
			log.Error("create conversation failed", "err", err)
			return nil, err
		}
		description = strings.TrimSpace(description)
	}

	var plan string
	if in.Quality == QualityHigh {
		plan, err = s.complete(ctx, "architect", in.Model, chatID, prompt.ArchitectMessages(in.Prompt, description),
			ai.WithTemperature(prompt.ArchitectTemperature),
			ai.WithMaxTokens(prompt.ArchitectMaxTokens),
		)
		if err != nil {
			log.Error("create conversation failed", "err", err)
			return nil, err
		}
		plan = strings.TrimSpace(plan)
	}

	seed := prompt.SeedMessages(example, prompt.SeedUserMessage(in.Prompt, description, plan))
	last, err := s.repo.SeedConversation(ctx, chatID, title, seed)
	if err != nil {
		return nil, err
	}

	log.Info("chat seeded", "title", title, "example", example, "last_message_id", last.ID)
	return &CreateResult{ChatID: chatID, LastMessageID: last.ID}, nil
}

func (s *Service) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	return s.repo.GetChatWithMessages(ctx, chatID)
}

// AppendMessage adds a user or assistant turn at the end of the chat.
func (s *Service) AppendMessage(ctx context.Context, chatID, text, role string) (*Message, error) {
	if role != ai.RoleUser && role != ai.RoleAssistant {
		return nil, fmt.Errorf("%w: role must be user or assistant", ErrInvalidRequest)
	}
	return s.repo.AppendMessage(ctx, chatID, role, text)
}

// OpenCompletionStream starts a streamed completion over the chat history up
// to and including messageID. The returned body is newline-delimited and
// SSE framed; the caller must close it.
func (s *Service) OpenCompletionStream(ctx context.Context, messageID, model string) (io.ReadCloser, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return s.openStream(ctx, msg, model)
}

func (s *Service) openStream(ctx context.Context, msg *Message, model string) (io.ReadCloser, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}

	history, err := s.repo.ListHistory(ctx, msg.ChatID, msg.Position)
	if err != nil {
		return nil, err
	}
	msgs, err := toProviderMessages(history)
	if err != nil {
		return nil, err
	}

	route := s.router.Resolve(model, msg.ChatID)
	p, err := s.registry.Get(ctx, route)
	if err != nil {
		return nil, err
	}
	sp, ok := p.(ai.StreamProvider)
	if !ok {
		return nil, ErrStreamUnsupported
	}

	var opts []ai.CallOption
	if route.Backend != ai.BackendSelfHosted {
		opts = append(opts,
			ai.WithTemperature(prompt.CompletionTemperature),
			ai.WithMaxTokens(s.opts.StreamMaxTokens),
		)
	}
	body, err := sp.OpenStream(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("completion stream opened", "chat_id", msg.ChatID, "message_id", msg.ID,
		"model", route.Model, "backend", route.Backend, "history", len(msgs))
	return body, nil
}

type teeBody struct {
	io.Reader
	io.Closer
}

// RelayCompletion streams a completion for messageID into w byte for byte,
// decoding it on the way. When the stream ends cleanly the reply is stored as
// a new assistant message and returned. On read errors, write errors or
// cancellation nothing is stored.
func (s *Service) RelayCompletion(ctx context.Context, messageID, model string, w io.Writer) (*Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, msg.ChatID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrStreamInProgress
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), msg.ChatID, token); err != nil {
				slog.Warn("stream unlock failed", "chat_id", msg.ChatID, "err", err)
			}
		}()
	}

	body, err := s.openStream(ctx, msg, model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	consumer := &stream.Consumer{}
	text, err := consumer.Consume(ctx, teeBody{Reader: io.TeeReader(body, w), Closer: body})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("completion stream cancelled", "chat_id", msg.ChatID, "message_id", messageID)
		} else {
			slog.Error("completion stream failed", "chat_id", msg.ChatID, "message_id", messageID, "err", err)
		}
		return nil, err
	}

	reply, err := s.repo.AppendMessage(ctx, msg.ChatID, ai.RoleAssistant, text)
	if err != nil {
		return nil, err
	}
	slog.Info("completion stored", "chat_id", msg.ChatID, "message_id", reply.ID,
		"position", reply.Position, "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return reply, nil
}

// EnqueueCompletion records a queued completion job for messageID. With an
// idempotency key, a repeated request returns the original job and created
// is false.
func (s *Service) EnqueueCompletion(ctx context.Context, messageID, model string, idempotencyKey *string) (job *Job, created bool, err error) {
	if strings.TrimSpace(model) == "" {
		return nil, false, fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	jobID, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	return s.repo.CreateJobOrGetExisting(ctx, &Job{
		ID:             jobID,
		ChatID:         msg.ChatID,
		MessageID:      msg.ID,
		Model:          strings.TrimSpace(model),
		IdempotencyKey: idempotencyKey,
		Status:         JobQueued,
	})
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// RunJob executes a queued completion job. Jobs that are no longer queued are
// skipped so redelivered messages do not append twice.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	claimed, err := s.repo.UpdateJobStatusRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Info("job skipped", "job_id", jobID, "status", job.Status)
		return nil
	}

	reply, runErr := s.RelayCompletion(ctx, job.MessageID, job.Model, io.Discard)
	if runErr != nil {
		wctx := context.WithoutCancel(ctx)
		if permanentJobError(runErr) {
			err = s.repo.MarkJobFailed(wctx, jobID, runErr.Error())
		} else {
			err = s.repo.RequeueJob(wctx, jobID, runErr.Error())
		}
		if err != nil {
			return err
		}
		return runErr
	}
	return s.repo.MarkJobSucceeded(ctx, jobID, reply.ID)
}

// FailJob records a terminal failure, used once retries are exhausted.
func (s *Service) FailJob(ctx context.Context, jobID, reason string) error {
	return s.repo.MarkJobFailed(ctx, jobID, reason)
}

// permanentJobError reports errors a retry cannot fix.
func permanentJobError(err error) bool {
	var cfgErr *ai.ConfigError
	switch {
	case errors.As(err, &cfgErr),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidHistory),
		errors.Is(err, ErrStreamUnsupported):
		return true
	}
	return false
}
