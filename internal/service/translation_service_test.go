package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"
)

func newTranslationTestService(t *testing.T, reply string, calls *int32) *AITranslationService {
	t.Helper()
	gdb := setupServiceTestDB(t, "translation")
	settings := NewSystemSettingService(gdb)
	if _, err := settings.UpdateSettings(context.Background(), SystemSettingsInput{AIProvider: AIProviderOpenAI, OpenAIAPIKey: "sk-test"}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	svc := NewAITranslationService(settings, NewMemoryTranslationCache(0), zaptest.NewLogger(t))
	svc.SetOpenAIBaseURL("https://openai.test/v1")
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(calls, 1)
		var payload struct {
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		var system string
		_ = json.Unmarshal(payload.Messages[0].Content, &system)
		if !strings.Contains(system, "English") {
			t.Fatalf("expected english target in system prompt, got %q", system)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: chatCompletionBody(reply), Header: make(http.Header)}, nil
	}})
	return svc
}

func TestAITranslationServiceTranslatesAndCaches(t *testing.T) {
	var calls int32
	svc := newTranslationTestService(t, "“Sunset by the sea”", &calls)

	for i := 0; i < 2; i++ {
		got, err := svc.Translate(context.Background(), " 海边日落 ", "auto", "en")
		if err != nil {
			t.Fatalf("translate: %v", err)
		}
		if got != "Sunset by the sea" {
			t.Fatalf("unexpected translation %q", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected cached second call, got %d provider calls", calls)
	}
}

func TestAITranslationServiceEmptyResult(t *testing.T) {
	var calls int32
	svc := newTranslationTestService(t, "  ", &calls)

	if _, err := svc.Translate(context.Background(), "海边日落", "auto", "en"); !errors.Is(err, ErrTranslationEmpty) {
		t.Fatalf("expected ErrTranslationEmpty, got %v", err)
	}
	if _, err := svc.Translate(context.Background(), "", "auto", "en"); !errors.Is(err, ErrTranslationEmpty) {
		t.Fatalf("expected ErrTranslationEmpty for empty input, got %v", err)
	}
	if _, err := svc.Translate(context.Background(), "海边日落", "auto", "fr"); err == nil {
		t.Fatal("expected unsupported target to fail")
	}
}

func TestTrimWrappingQuotes(t *testing.T) {
	cases := map[string]string{
		`"Hello"`:    "Hello",
		"「海边」":       "海边",
		"plain":      "plain",
		`"`:          `"`,
		" 'quoted' ": "quoted",

		`"Dawn" and "Dusk"`: `"Dawn" and "Dusk"`,
		"“晨”与“昏”":           "“晨”与“昏”",
	}
	for input, want := range cases {
		if got := trimWrappingQuotes(input); got != want {
			t.Fatalf("trimWrappingQuotes(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestAITranslationServiceTranslatesLongTextInChunks(t *testing.T) {
	gdb := setupServiceTestDB(t, "translation-long")
	settings := NewSystemSettingService(gdb)
	if _, err := settings.UpdateSettings(context.Background(), SystemSettingsInput{AIProvider: AIProviderOpenAI, OpenAIAPIKey: "sk-test"}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	var sent []int
	svc := NewAITranslationService(settings, NewMemoryTranslationCache(0), zaptest.NewLogger(t))
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		var payload struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		sent = append(sent, utf8.RuneCountInString(payload.Messages[1].Content))
		return &http.Response{StatusCode: http.StatusOK, Body: chatCompletionBody("sea"), Header: make(http.Header)}, nil
	}})

	got, err := svc.Translate(context.Background(), strings.Repeat("海", 9000), "auto", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}

	total := 0
	for _, n := range sent {
		if n > maxTranslationChunkRunes {
			t.Fatalf("chunk of %d runes exceeds limit", n)
		}
		total += n
	}
	if total != 9000 {
		t.Fatalf("expected all 9000 runes sent to provider, got %d (%v)", total, sent)
	}
	if want := strings.TrimSpace(strings.Repeat("sea ", len(sent))); got != want {
		t.Fatalf("unexpected joined translation %q", got)
	}
}

func TestAITranslationServiceLongTextFailsWhole(t *testing.T) {
	gdb := setupServiceTestDB(t, "translation-long-fail")
	settings := NewSystemSettingService(gdb)
	if _, err := settings.UpdateSettings(context.Background(), SystemSettingsInput{AIProvider: AIProviderOpenAI, OpenAIAPIKey: "sk-test"}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	var calls int32
	svc := NewAITranslationService(settings, NewMemoryTranslationCache(0), zaptest.NewLogger(t))
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		reply := "ok"
		if atomic.AddInt32(&calls, 1) == 2 {
			reply = " "
		}
		return &http.Response{StatusCode: http.StatusOK, Body: chatCompletionBody(reply), Header: make(http.Header)}, nil
	}})

	text := strings.Repeat("山", 1500) + "\n\n" + strings.Repeat("水", 1500)
	if got, err := svc.Translate(context.Background(), text, "auto", "en"); !errors.Is(err, ErrTranslationEmpty) || got != "" {
		t.Fatalf("expected empty result with ErrTranslationEmpty, got %q, %v", got, err)
	}
}

func TestSplitTranslationChunks(t *testing.T) {
	short := splitTranslationChunks("晨光\n\n\n\n暮色", 10)
	if len(short) != 1 || short[0].text != "晨光\n\n暮色" {
		t.Fatalf("expected short paragraphs merged, got %#v", short)
	}

	paragraphs := splitTranslationChunks("aaaa\n\nbbbb\n\ncccc", 10)
	if len(paragraphs) != 2 || paragraphs[0].text != "aaaa\n\nbbbb" || paragraphs[1].text != "cccc" || paragraphs[1].sep != "\n\n" {
		t.Fatalf("unexpected paragraph chunks %#v", paragraphs)
	}

	sentences := splitTranslationChunks("one two three four", 10)
	if len(sentences) != 2 || sentences[0].text != "one two" || sentences[1].text != "three four" || sentences[1].sep != " " {
		t.Fatalf("expected split on whitespace, got %#v", sentences)
	}
}
