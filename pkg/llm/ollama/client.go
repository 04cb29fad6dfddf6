package ollama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"kernelapi/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	bufferSize   int
	debugEnabled bool
}

// SetDebug enables raw chunk capture.
func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

func (o *OllamaClient) SetBufferSize(n int) {
	if n > 0 {
		o.bufferSize = n
	}
}

// NewHTTPClient returns the transport shared by chat and embeddings.
// It imposes no response timeout: local models can take minutes to load.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
	}
}

// NewAPIClient builds an Ollama API client for baseURL, or from
// OLLAMA_HOST when baseURL is empty.
func NewAPIClient(baseURL string) (*api.Client, error) {
	if baseURL == "" {
		return api.ClientFromEnvironment()
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return api.NewClient(u, NewHTTPClient()), nil
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string) (*OllamaClient, error) {
	client, err := NewAPIClient(baseURL)
	if err != nil {
		return nil, err
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:     client,
		model:      model,
		bufferSize: 100,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

// chatOptions maps execution settings onto Ollama model options.
func chatOptions(settings *llm.ExecutionSettings) map[string]any {
	if settings == nil {
		return nil
	}
	opts := map[string]any{}
	if settings.MaxTokens > 0 {
		opts["num_predict"] = settings.MaxTokens
	}
	if settings.Temperature != nil {
		opts["temperature"] = *settings.Temperature
	}
	if settings.TopP != nil {
		opts["top_p"] = *settings.TopP
	}
	if settings.PresencePenalty != 0 {
		opts["presence_penalty"] = settings.PresencePenalty
	}
	if settings.FrequencyPenalty != 0 {
		opts["frequency_penalty"] = settings.FrequencyPenalty
	}
	if len(settings.StopSequences) > 0 {
		opts["stop"] = settings.StopSequences
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func (o *OllamaClient) StreamChat(ctx context.Context, messages []llm.Message, settings *llm.ExecutionSettings) (<-chan llm.StreamChunk, error) {
	apiMessages := o.convertMessages(messages)

	chunkCh := make(chan llm.StreamChunk, o.bufferSize)
	startResultCh := make(chan error) // Unbuffered to detect if reader is present

	go func() {
		defer close(chunkCh)

		streamVal := true
		req := &api.ChatRequest{
			Model:    o.model,
			Messages: apiMessages,
			Options:  chatOptions(settings),
			Stream:   &streamVal,
		}

		started := false
		var thoughtsCount int

		debugger := llm.NewStreamDebugger(ctx, "ollama", o.debugEnabled)
		defer debugger.Close()

		// Track chunks for log preview
		chunkIdx := 0

		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chunkIdx++
			if data, err := json.Marshal(resp); err == nil {
				debugger.Write(data)
			}
			// First callback indicates success
			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Thinking != "" {
				thoughtsCount++
				chunkCh <- llm.NewThinkingChunk(resp.Message.Thinking)
			}

			if resp.Message.Content != "" {
				chunkCh <- llm.NewTextChunk(resp.Message.Content)
			}

			if resp.Done {
				reason := resp.DoneReason
				if reason == "" {
					reason = llm.StopReasonStop
				}
				usage := &llm.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					ThoughtsTokens:   thoughtsCount,
					StopReason:       reason,
				}

				if reason == llm.StopReasonLength {
					slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
				}

				chunkCh <- llm.NewFinalChunk(reason, usage)
			}

			return nil
		})

		if err != nil {
			slog.ErrorContext(ctx, "Stream error", "provider", "ollama", "model", o.model, "chunks", chunkIdx, "error", err)
			if !started {
				select {
				case startResultCh <- err:
				default:
					// Waiter gave up; surface the error in-stream instead
					chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Error loading model %s: %v", o.model, err), err, true)
				}
			} else {
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
			}
		} else if !started {
			select {
			case startResultCh <- nil:
			default:
			}
		}
	}()

	// Wait for initialization result
	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// convertMessages converts messages to Ollama API format
func (o *OllamaClient) convertMessages(messages []llm.Message) []api.Message {
	ollamaMsgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		ollamaMsgs = append(ollamaMsgs, api.Message{
			Role:    m.Role,
			Content: m.GetTextContent(),
		})
	}
	return ollamaMsgs
}

// IsTransientError implements the llm.LLMClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 1. Connection related errors (Connection refused, reset)
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	// 2. High load
	if strings.Contains(errMsg, "overloaded") {
		return true
	}

	return false
}

//----------------------------------------------------------------
// JSONFixingRoundTripper - Interceptor that fixes illegal JSON escapes
//----------------------------------------------------------------

// JSONFixingRoundTripper intercepts response and fixes illegal escapes (e.g., \$)
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	// Only filter text-type responses (mainly stream JSON)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(resp.Header.Get("Content-Type"), "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		// Only ever removes a backslash, so the result fits in p
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			copy(p, []byte(fixed))
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
