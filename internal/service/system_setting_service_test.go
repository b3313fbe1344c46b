package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestSystemSettingServiceDefaults(t *testing.T) {
	gdb := setupServiceTestDB(t, "settings-defaults")

	svc := NewSystemSettingService(gdb)
	settings, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}

	if settings.SiteName != "Lensfolio" {
		t.Fatalf("expected default site name Lensfolio, got %s", settings.SiteName)
	}
	if settings.AIProvider != AIProviderOpenAI {
		t.Fatalf("expected default provider openai, got %s", settings.AIProvider)
	}
	if settings.OpenAIAPIKey != "" || settings.DeepSeekAPIKey != "" || settings.VisionModel != "" {
		t.Fatalf("expected keys to be empty, got %#v", settings)
	}
}

func TestSystemSettingServiceUpdateAndRetrieve(t *testing.T) {
	gdb := setupServiceTestDB(t, "settings-update")

	svc := NewSystemSettingService(gdb)
	saved, err := svc.UpdateSettings(context.Background(), SystemSettingsInput{
		SiteName:       " 光影集 ",
		AIProvider:     " DeepSeek ",
		OpenAIAPIKey:   " sk-xxxx ",
		DeepSeekAPIKey: "ds-12345",
		VisionModel:    " gpt-4o ",
		TextModel:      " gpt-4.1-mini ",
	})
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	if saved.SiteName != "光影集" || saved.AIProvider != AIProviderDeepSeek || saved.VisionModel != "gpt-4o" || saved.TextModel != "gpt-4.1-mini" {
		t.Fatalf("unexpected sanitized settings: %#v", saved)
	}

	if _, err := svc.UpdateSettings(context.Background(), SystemSettingsInput{SiteName: "光影集", AIProvider: "unknown", OpenAIAPIKey: "sk-new"}); err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	loaded, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if loaded.AIProvider != AIProviderOpenAI {
		t.Fatalf("expected unknown provider to fall back to openai, got %s", loaded.AIProvider)
	}
	if loaded.OpenAIAPIKey != "sk-new" || loaded.DeepSeekAPIKey != "" {
		t.Fatalf("expected upserted keys, got %#v", loaded)
	}
}

func TestSystemSettingServiceFallbackSiteName(t *testing.T) {
	gdb := setupServiceTestDB(t, "settings-fallback")

	svc := NewSystemSettingService(gdb)
	saved, err := svc.UpdateSettings(context.Background(), SystemSettingsInput{SiteName: "   "})
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	if saved.SiteName != "Lensfolio" {
		t.Fatalf("expected fallback site name, got %q", saved.SiteName)
	}
}

type stubHTTPClient struct {
	t            *testing.T
	allowedKey   string
	expectedHost string
}

func (s stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	s.t.Helper()
	if !strings.HasSuffix(req.URL.Path, "/models") {
		s.t.Fatalf("unexpected path %s", req.URL.Path)
	}
	if s.expectedHost != "" && req.URL.Host != s.expectedHost {
		s.t.Fatalf("unexpected host %s", req.URL.Host)
	}
	if s.allowedKey != "" && req.Header.Get("Authorization") != "Bearer "+s.allowedKey {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader("unauthorized")),
			Header:     make(http.Header),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Header:     make(http.Header),
	}, nil
}

func TestSystemSettingServiceTestAIConnection(t *testing.T) {
	gdb := setupServiceTestDB(t, "settings-ai")

	svc := NewSystemSettingService(gdb)
	svc.SetHTTPClient(stubHTTPClient{t: t, allowedKey: "sk-valid", expectedHost: "openai.test"})
	svc.SetOpenAIBaseURL("https://openai.test/v1")

	if err := svc.TestAIConnection(context.Background(), AIProviderOpenAI, ""); !errors.Is(err, ErrAIAPIKeyMissing) {
		t.Fatalf("expected ErrAIAPIKeyMissing, got %v", err)
	}
	if err := svc.TestAIConnection(context.Background(), AIProviderOpenAI, "sk-invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if err := svc.TestAIConnection(context.Background(), AIProviderOpenAI, "sk-valid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.SetDeepSeekBaseURL("https://deepseek.test/v1")
	svc.SetHTTPClient(stubHTTPClient{t: t, allowedKey: "ds-valid", expectedHost: "deepseek.test"})
	if err := svc.TestAIConnection(context.Background(), AIProviderDeepSeek, "ds-valid"); err != nil {
		t.Fatalf("unexpected error for deepseek: %v", err)
	}
}
