//go:build !integration

package config

import (
	"strings"
	"testing"
	"time"
)

const minimal = `
database: {url: postgres://localhost/chat}
redis: {url: localhost:6379}
auth: {jwt_secret: s3cret}
assistants:
  - colleague_id: " Claire "
    assistant_id: asst_1
    document_set_id: vs_1
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.RequestTimeout != 15*time.Second {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.AI.Mode != "stream" || cfg.AI.Poll.Interval != time.Second || cfg.AI.Poll.MaxAttempts != 60 {
		t.Fatalf("ai defaults: %+v", cfg.AI)
	}
	if cfg.Storage.Bucket != "documents" || cfg.Locale != "nl" || cfg.Limits.TurnsPerMinute != 20 {
		t.Fatalf("misc defaults: %+v %q %+v", cfg.Storage, cfg.Locale, cfg.Limits)
	}
	if cfg.Auth.TTL != 7*24*time.Hour {
		t.Fatalf("auth ttl = %s", cfg.Auth.TTL)
	}
	if got := cfg.Assistants[0].ColleagueID; got != "claire" {
		t.Fatalf("colleague id not normalized: %q", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"no database", strings.Replace(minimal, "database: {url: postgres://localhost/chat}", "", 1), "database.url"},
		{"bad mode", minimal + "ai: {mode: batch}\n", "ai.mode"},
		{"no assistants", "database: {url: x}\nredis: {url: y}\nauth: {jwt_secret: z}\n", "assistants"},
		{"duplicate colleague", minimal + "  - colleague_id: claire\n", "duplicate"},
		{"no assistant id", minimal + "  - colleague_id: henk\n", "assistant_id"},
		{"bad yaml", "database: [", "parse config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestParse_PollMode(t *testing.T) {
	cfg, err := Parse([]byte(minimal + "ai: {mode: \" POLL \"}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.AI.Mode != "poll" {
		t.Fatalf("mode = %q", cfg.AI.Mode)
	}
}
