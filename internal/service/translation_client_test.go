package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pagecraft/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHTTPClient struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handler  func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	body := ""
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body = string(raw)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeHTTPClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		"usage":   map[string]int{"prompt_tokens": 3, "completion_tokens": 5},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

// echoTranslation 按平台的回复格式，为批次中每条文本加上前缀后返回。
func echoTranslation(prefix string) func(req *http.Request, body string) *http.Response {
	return func(req *http.Request, body string) *http.Response {
		var payload chatCompletionRequest
		if err := json.Unmarshal([]byte(body), &payload); err != nil || len(payload.Messages) < 2 {
			return jsonResponse(http.StatusBadRequest, `{"error":{"message":"bad body"}}`)
		}
		var batch translationBatch
		if err := json.Unmarshal([]byte(payload.Messages[1].Content), &batch); err != nil {
			return jsonResponse(http.StatusBadRequest, `{"error":{"message":"bad batch"}}`)
		}
		reply := struct {
			Items []translationItem `json:"items"`
		}{}
		for _, item := range batch.Items {
			reply.Items = append(reply.Items, translationItem{ID: item.ID, Text: prefix + item.Text})
		}
		raw, _ := json.Marshal(reply)
		return jsonResponse(http.StatusOK, completionBody(string(raw)))
	}
}

func TestTranslatorClientUsesExtendedTimeout(t *testing.T) {
	client := newTranslatorClient(nil)

	httpClient, ok := client.http.(*http.Client)
	require.True(t, ok)
	assert.GreaterOrEqual(t, httpClient.Timeout, time.Minute)

	client.setHTTPClient(nil)
	httpClient, ok = client.http.(*http.Client)
	require.True(t, ok)
	assert.GreaterOrEqual(t, httpClient.Timeout, time.Minute)
}

func TestTranslatorClientSendsBatchToSelectedProvider(t *testing.T) {
	gdb := dbtest.Open(t)
	settings := NewSystemSettingService(gdb, "")
	_, err := settings.UpdateSettings(SystemSettingsInput{TranslationProvider: AIProviderDeepSeek, DeepSeekAPIKey: "ds-key"})
	require.NoError(t, err)

	echo := echoTranslation("FR: ")
	var fake *fakeHTTPClient
	fake = &fakeHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		return echo(req, fake.bodies[len(fake.bodies)-1]), nil
	}}
	client := newTranslatorClient(settings)
	client.setHTTPClient(fake)
	client.setBaseURL(AIProviderDeepSeek, "https://deepseek.test/v1/")
	client.setModel(AIProviderDeepSeek, "deepseek-v3")

	current, err := client.currentSettings()
	require.NoError(t, err)
	replies, err := client.translate(context.Background(), current, translationBatch{
		Source: "English",
		Target: "French",
		Items:  []translationItem{{ID: "1", Text: "Hello"}, {ID: "2", Text: "Bye"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "FR: Hello", "2": "FR: Bye"}, replies)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "https://deepseek.test/v1/chat/completions", fake.requests[0].URL.String())
	assert.Equal(t, "Bearer ds-key", fake.requests[0].Header.Get("Authorization"))
	assert.Contains(t, fake.bodies[0], `"model":"deepseek-v3"`)
	assert.Contains(t, fake.bodies[0], `"response_format":{"type":"json_object"}`)
	assert.Contains(t, fake.bodies[0], "from English to French")
}

func TestTranslatorClientRequiresKey(t *testing.T) {
	gdb := dbtest.Open(t)
	client := newTranslatorClient(NewSystemSettingService(gdb, ""))

	current, err := client.currentSettings()
	require.NoError(t, err)
	_, err = client.translate(context.Background(), current, translationBatch{Items: []translationItem{{ID: "1", Text: "Hello"}}})
	assert.ErrorIs(t, err, ErrAIAPIKeyMissing)

	_, err = newTranslatorClient(nil).currentSettings()
	assert.ErrorIs(t, err, ErrAIAPIKeyMissing)
}

func TestTranslatorClientSurfacesProviderError(t *testing.T) {
	client := newTranslatorClient(nil)
	client.setHTTPClient(&fakeHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error":{"message":"bad key"}}`), nil
	}})

	_, err := client.translate(context.Background(), SystemSettings{OpenAIAPIKey: "k"}, translationBatch{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestDecodeTranslatedItems(t *testing.T) {
	items, err := decodeTranslatedItems("```json\n{\"items\":[{\"id\":\"1\",\"text\":\"Bonjour\"},{\"id\":\"\",\"text\":\"x\"}]}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "Bonjour"}, items)

	_, err = decodeTranslatedItems("Bonjour")
	assert.ErrorIs(t, err, ErrTranslationReply)
}

func TestProtectTranslatable(t *testing.T) {
	input := "Hi :name, you have {count} items at 10:30 on https://example.com ![a](https://cdn.test/a.png) ![b](<https://cdn.test/b c.png>)"
	masked, guard := protectTranslatable(input)

	assert.Equal(t, 4, guard.Len())
	assert.Equal(t, "Hi [[3]], you have [[4]] items at 10:30 on https://example.com ![a](image://asset-1) ![b](<image://asset-2>)", masked)

	restored, complete := guard.Restore("Salut " + strings.TrimPrefix(masked, "Hi "))
	assert.True(t, complete)
	assert.Equal(t, "Salut "+strings.TrimPrefix(input, "Hi "), restored)

	_, complete = guard.Restore("Salut, vous avez [[4]] articles")
	assert.False(t, complete)
}

func TestProtectTranslatableManyImages(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 11; i++ {
		b.WriteString("![x](https://cdn.test/img")
		b.WriteString(strings.Repeat("i", i))
		b.WriteString(".png) ")
	}
	masked, guard := protectTranslatable(b.String())
	require.Equal(t, 11, guard.Len())
	assert.Contains(t, masked, "image://asset-11")

	restored, complete := guard.Restore(masked)
	assert.True(t, complete)
	assert.Equal(t, b.String(), restored)
}

func TestProtectTranslatableWithoutTokens(t *testing.T) {
	masked, guard := protectTranslatable("Plain text: nothing here")
	assert.Equal(t, "Plain text: nothing here", masked)
	assert.Zero(t, guard.Len())

	restored, complete := guard.Restore("Texte simple")
	assert.True(t, complete)
	assert.Equal(t, "Texte simple", restored)
}
