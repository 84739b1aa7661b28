package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pagecraft/internal/logging"
)

// ErrTranslationReply 表示模型返回的内容无法解析为译文列表。
var ErrTranslationReply = errors.New("unreadable translation reply")

const (
	translateTimeout       = 180 * time.Second
	maxTranslateLogRunes   = 1024
	maxTranslateReplyBytes = 4 << 20
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// translationItem 是批量翻译中的一条文本，ID 在一个批次内唯一。
type translationItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// translationBatch 是发送给模型的用户消息，源语言与目标语言使用英文名称。
type translationBatch struct {
	Source string            `json:"source"`
	Target string            `json:"target"`
	Items  []translationItem `json:"items"`
}

type providerEndpoint struct {
	label   string
	baseURL string
	model   string
}

// translatorClient 通过 OpenAI 兼容的 chat completions 接口批量翻译文本。
// 当前使用的平台与 API Key 每次都从系统设置读取。
type translatorClient struct {
	settings  *SystemSettingService
	http      httpDoer
	endpoints map[string]*providerEndpoint
}

func newTranslatorClient(settings *SystemSettingService) *translatorClient {
	return &translatorClient{
		settings: settings,
		http:     &http.Client{Timeout: translateTimeout},
		endpoints: map[string]*providerEndpoint{
			AIProviderOpenAI: {
				label:   "OpenAI",
				baseURL: defaultProviderBaseURL(AIProviderOpenAI),
				model:   defaultTranslationModel,
			},
			AIProviderDeepSeek: {
				label:   "DeepSeek",
				baseURL: defaultProviderBaseURL(AIProviderDeepSeek),
				model:   defaultDeepSeekModel,
			},
		},
	}
}

func (c *translatorClient) setHTTPClient(client httpDoer) {
	if client == nil {
		client = &http.Client{Timeout: translateTimeout}
	}
	c.http = client
}

// setBaseURL 覆盖平台地址，空值恢复默认地址。
func (c *translatorClient) setBaseURL(provider, base string) {
	endpoint, ok := c.endpoints[provider]
	if !ok {
		return
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = defaultProviderBaseURL(provider)
	}
	endpoint.baseURL = base
}

// setModel 覆盖模型名称，空值保持不变。
func (c *translatorClient) setModel(provider, model string) {
	endpoint, ok := c.endpoints[provider]
	if !ok {
		return
	}
	if model = strings.TrimSpace(model); model != "" {
		endpoint.model = model
	}
}

// currentSettings 读取系统设置；没有设置服务时视为未配置 API Key。
func (c *translatorClient) currentSettings() (SystemSettings, error) {
	if c.settings == nil {
		return SystemSettings{}, ErrAIAPIKeyMissing
	}
	return c.settings.GetSettings()
}

// translate 发送一个批次，返回按条目 ID 索引的译文。模型漏掉的条目不会出现在结果中。
func (c *translatorClient) translate(ctx context.Context, settings SystemSettings, batch translationBatch) (map[string]string, error) {
	provider := normalizeAIProvider(settings.TranslationProvider)
	if provider == "" {
		provider = AIProviderOpenAI
	}
	endpoint := c.endpoints[provider]

	apiKey := strings.TrimSpace(settings.OpenAIAPIKey)
	if provider == AIProviderDeepSeek {
		apiKey = strings.TrimSpace(settings.DeepSeekAPIKey)
	}
	if apiKey == "" {
		return nil, ErrAIAPIKeyMissing
	}

	userPrompt, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("构造翻译批次失败: %w", err)
	}
	body, err := json.Marshal(chatCompletionRequest{
		Model: endpoint.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(translationSystemPrompt, batch.Source, batch.Target)},
			{Role: "user", Content: string(userPrompt)},
		},
		Temperature:    0.2,
		ResponseFormat: &chatResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	logTranslateExchange(batch, "request", string(userPrompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 %s 请求失败: %w", endpoint.label, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pagecraft-translator/1.0")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 接口失败: %w", endpoint.label, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTranslateReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("读取 %s 响应失败: %w", endpoint.label, err)
	}
	var completion chatCompletionResponse
	decodeErr := json.Unmarshal(raw, &completion)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(completion.Error.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%s 接口返回错误：%s", endpoint.label, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("解析 %s 响应失败: %w", endpoint.label, decodeErr)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s 接口未返回结果", endpoint.label)
	}

	content := completion.Choices[0].Message.Content
	logTranslateExchange(batch, "response", content)
	return decodeTranslatedItems(content)
}

// decodeTranslatedItems 解析 {"items":[{"id","text"}]}，容忍模型额外包裹的代码块标记。
func decodeTranslatedItems(content string) (map[string]string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var reply struct {
		Items []translationItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranslationReply, err)
	}
	out := make(map[string]string, len(reply.Items))
	for _, item := range reply.Items {
		if item.ID != "" {
			out[item.ID] = item.Text
		}
	}
	return out, nil
}

func logTranslateExchange(batch translationBatch, phase, content string) {
	snippet := strings.TrimSpace(content)
	runes := utf8.RuneCountInString(snippet)
	if runes > maxTranslateLogRunes {
		snippet = string([]rune(snippet)[:maxTranslateLogRunes]) + "…(truncated)"
	}
	logging.L().Debug().
		Str("phase", phase).
		Str("source", batch.Source).
		Str("target", batch.Target).
		Int("items", len(batch.Items)).
		Int("runes", runes).
		Str("content", snippet).
		Msg("translation exchange")
}
