package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/catalog-search/internal/infrastructure/resilience"
)

const defaultRequestTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

// WithTimeout bounds every request to the model server.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	type embedResponse struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	response, err := resilience.Call(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) (embedResponse, error) {
		var out embedResponse
		err := e.client.postJSON(callCtx, "/api/embed", request, &out, "embed")
		return out, err
	}, classifyOllamaError)
	if err != nil {
		return nil, callError("ollama.embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator sends a system instruction and one user message to the chat
// endpoint and returns the assistant reply.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, instruction, input string) (string, error) {
	return g.client.chat(ctx, instruction, input, false)
}

// GenerateJSON asks the model to constrain its reply to a JSON document.
func (g *Generator) GenerateJSON(ctx context.Context, instruction, input string) (string, error) {
	return g.client.chat(ctx, instruction, input, true)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func (c *Client) chat(ctx context.Context, instruction, input string, jsonFormat bool) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(instruction) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: instruction})
	}
	messages = append(messages, chatMessage{Role: "user", Content: input})

	reqBody := map[string]any{
		"model":    c.genModel,
		"messages": messages,
		"stream":   false,
		"options":  map[string]any{"temperature": 0},
	}
	if jsonFormat {
		reqBody["format"] = "json"
	}

	response, err := resilience.Call(ctx, c.executor, "ollama.chat", func(callCtx context.Context) (chatResponse, error) {
		var out chatResponse
		err := c.postJSON(callCtx, "/api/chat", reqBody, &out, "chat")
		return out, err
	}, classifyOllamaError)
	if err != nil {
		return "", callError("ollama.chat", err)
	}
	return strings.TrimSpace(response.Message.Content), nil
}
