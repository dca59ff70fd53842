package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/ports/adapter"
	"colleague-chat/internal/infra/metrics"
)

const providerName = "openai"

// Compile-time assurance this adapter satisfies the port
var _ adapter.AssistantProvider = (*AssistantsAdapter)(nil)

// AssistantsAdapter implements adapter.AssistantProvider on the OpenAI Assistants v2 API.
// Requests go through the generic client so the adapter depends only on the stable
// threads/runs/messages/files REST shapes.
type AssistantsAdapter struct {
	client openai.Client
}

func NewAssistantsAdapter(apiKey, baseURL string, maxRetries int) (*AssistantsAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHeader("OpenAI-Beta", "assistants=v2"),
		option.WithMaxRetries(maxRetries),
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AssistantsAdapter{client: openai.NewClient(opts...)}, nil
}

type threadBody struct {
	ToolResources *toolResources `json:"tool_resources,omitempty"`
}

type toolResources struct {
	FileSearch fileSearchResources `json:"file_search"`
}

type fileSearchResources struct {
	VectorStoreIDs []string `json:"vector_store_ids"`
}

type runBody struct {
	AssistantID            string `json:"assistant_id"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
	Stream                 bool   `json:"stream,omitempty"`
}

func (a *AssistantsAdapter) CreateThread(ctx context.Context, documentSetID string) (string, error) {
	start := time.Now()
	body := threadBody{}
	if documentSetID != "" {
		body.ToolResources = &toolResources{FileSearch: fileSearchResources{VectorStoreIDs: []string{documentSetID}}}
	}
	var out wireThread
	err := a.client.Post(ctx, "threads", body, &out)
	observe("create_thread", start, err)
	if err != nil {
		return "", classify("create thread", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create thread: empty id: %w", domain.ErrUpstreamFormat)
	}
	return out.ID, nil
}

func (a *AssistantsAdapter) AppendUserTurn(ctx context.Context, threadID, text string) error {
	start := time.Now()
	body := map[string]string{"role": "user", "content": text}
	var out wireMessage
	err := a.client.Post(ctx, "threads/"+threadID+"/messages", body, &out)
	observe("append_message", start, err)
	if err != nil {
		return classify("append message", err)
	}
	return nil
}

func (a *AssistantsAdapter) StreamRun(ctx context.Context, spec adapter.RunSpec) (adapter.RunStream, error) {
	start := time.Now()
	body := runBody{AssistantID: spec.AssistantID, AdditionalInstructions: spec.Instructions, Stream: true}
	var raw *http.Response
	err := a.client.Post(ctx, "threads/"+spec.ThreadID+"/runs", body, &raw,
		option.WithHeader("Accept", "text/event-stream"))
	observe("stream_run", start, err)
	if err != nil {
		return nil, classify("start run", err)
	}
	return &runStream{dec: ssestream.NewDecoder(raw)}, nil
}

func (a *AssistantsAdapter) CreateRun(ctx context.Context, spec adapter.RunSpec) (adapter.Run, error) {
	start := time.Now()
	body := runBody{AssistantID: spec.AssistantID, AdditionalInstructions: spec.Instructions}
	var out wireRun
	err := a.client.Post(ctx, "threads/"+spec.ThreadID+"/runs", body, &out)
	observe("create_run", start, err)
	if err != nil {
		return adapter.Run{}, classify("create run", err)
	}
	return out.toRun(), nil
}

func (a *AssistantsAdapter) GetRun(ctx context.Context, threadID, runID string) (adapter.Run, error) {
	start := time.Now()
	var out wireRun
	err := a.client.Get(ctx, "threads/"+threadID+"/runs/"+runID, nil, &out)
	observe("get_run", start, err)
	if err != nil {
		return adapter.Run{}, classify("get run", err)
	}
	return out.toRun(), nil
}

func (a *AssistantsAdapter) FetchLatestMessage(ctx context.Context, threadID string) (adapter.ThreadMessage, error) {
	start := time.Now()
	var out struct {
		Data []wireMessage `json:"data"`
	}
	err := a.client.Get(ctx, "threads/"+threadID+"/messages", nil, &out,
		option.WithQuery("limit", "1"),
		option.WithQuery("order", "desc"),
	)
	observe("latest_message", start, err)
	if err != nil {
		return adapter.ThreadMessage{}, classify("list messages", err)
	}
	if len(out.Data) == 0 {
		return adapter.ThreadMessage{}, domain.ErrNotFound
	}
	return out.Data[0].toThreadMessage(), nil
}

func (a *AssistantsAdapter) FetchFileMetadata(ctx context.Context, fileID string) (adapter.FileMetadata, error) {
	start := time.Now()
	var out struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	err := a.client.Get(ctx, "files/"+fileID, nil, &out)
	observe("file_metadata", start, err)
	if err != nil {
		return adapter.FileMetadata{}, classify("file metadata", err)
	}
	return adapter.FileMetadata{ID: out.ID, Filename: out.Filename}, nil
}

func observe(op string, start time.Time, err error) {
	metrics.ObserveAICall(providerName, op, time.Since(start).Milliseconds(), err == nil)
}

// classify maps provider failures onto the domain error taxonomy.
// Cancellation from the caller passes through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		var kind error
		switch {
		case apierr.StatusCode == http.StatusPaymentRequired,
			apierr.StatusCode == http.StatusTooManyRequests && apierr.Code == "insufficient_quota":
			kind = domain.ErrQuotaExceeded
		case apierr.StatusCode == http.StatusTooManyRequests:
			kind = domain.ErrRateLimited
		default:
			kind = domain.ErrUpstream
		}
		metrics.IncAIError(providerName, string(domain.CategoryOf(kind)))
		return fmt.Errorf("%s: status %d %s: %w", op, apierr.StatusCode, apierr.Message, kind)
	}
	metrics.IncAIError(providerName, string(domain.CategoryUpstream))
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrUpstream)
}
