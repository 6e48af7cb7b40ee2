package assistant

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"shopassist/app/config"
)

type Options struct {
	Temperature float64
	MaxTokens   int
	// Timeout bounds a single attempt. Zero means no per-attempt limit.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first one.
	Retries        int
	RetryBaseDelay time.Duration
}

func OptionsFrom(cfg config.OpenAI) Options {
	return Options{
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        cfg.Timeout,
		Retries:        cfg.Retries,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}
}

// Client is the retrying model collaborator. The engine only ever sees a
// resolved reply or a final failure.
type Client struct {
	model llms.Model
	opts  Options
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	model, err := NewOpenAI(cfg.OpenAI)
	if err != nil {
		return nil, err
	}

	return NewClient(model, OptionsFrom(cfg.OpenAI)), nil
}

// NewOpenAI builds an OpenAI-compatible chat model.
func NewOpenAI(cfg config.OpenAI) (llms.Model, error) {
	llm, err := openai.New(
		openai.WithToken(cfg.Token),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
		}),
		openai.WithCallback(LogCallbackHandler{}),
	)
	if err != nil {
		return nil, oops.In("assistant").With("model", cfg.Model).Wrapf(err, "failed to create openai client")
	}
	return llm, nil
}

func NewClient(model llms.Model, opts Options) *Client {
	return &Client{model: model, opts: opts}
}

// Complete runs one non-streaming completion and parses the reply.
func (c *Client) Complete(ctx context.Context, req Request) (Reply, error) {
	var text string

	err := c.retry(ctx, func(ctx context.Context) error {
		resp, err := c.model.GenerateContent(ctx, messages(req), c.callOptions()...)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices")
		}
		text = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	return ParseReply(text), nil
}

// Stream yields reply fragments in order. The sequence is single-use. A
// failed attempt is retried only while no fragment has been yielded; the
// final error, if any, is yielded last. Stopping early cancels the call.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		errc := make(chan error, 1)

		go func() {
			defer close(chunks)

			var emitted atomic.Int64
			streamFn := func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case chunks <- string(chunk):
					emitted.Add(1)
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			errc <- c.retry(ctx, func(ctx context.Context) error {
				opts := append(c.callOptions(), llms.WithStreamingFunc(streamFn))
				_, err := c.model.GenerateContent(ctx, messages(req), opts...)
				if err != nil && emitted.Load() > 0 {
					return fmt.Errorf("%w: stream interrupted: %w", ErrPermanent, err)
				}
				return err
			})
		}()

		for chunk := range chunks {
			if !yield(chunk, nil) {
				cancel()
				for range chunks {
				}
				return
			}
		}

		if err := <-errc; err != nil {
			yield("", err)
		}
	}
}

func (c *Client) retry(ctx context.Context, call func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := backoff(c.opts.RetryBaseDelay, attempt-1)
			slog.Warn("Retrying model call",
				"attempt", attempt+1,
				"delay", delay,
				"error", err,
			)
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return fmt.Errorf("model call abandoned: %w", sleepErr)
			}
		}

		err = c.attempt(ctx, call)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("model call abandoned: %w", ctx.Err())
		}
		if !retryable(err) {
			if !errors.Is(err, ErrPermanent) {
				err = fmt.Errorf("%w: %w", ErrPermanent, err)
			}
			return oops.In("assistant").With("attempt", attempt+1).Wrapf(err, "model call rejected")
		}
	}

	return oops.In("assistant").With("attempts", c.opts.Retries+1).Wrapf(err, "model unavailable")
}

func (c *Client) attempt(ctx context.Context, call func(ctx context.Context) error) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	return call(ctx)
}

func (c *Client) callOptions() []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(c.opts.Temperature),
	}
	if c.opts.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.opts.MaxTokens))
	}
	return opts
}

func messages(req Request) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.SystemInstructions),
		llms.TextParts(llms.ChatMessageTypeHuman, req.UserPayload),
	}
}
