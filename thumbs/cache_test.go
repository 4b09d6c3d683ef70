package thumbs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/anim8or/GameGleaner/fetch"
)

type fakeClient struct {
	calls  map[string]int
	body   []byte
	bodies map[string]string
	err    error
}

func newFakeClient(body string) *fakeClient {
	return &fakeClient{calls: make(map[string]int), body: []byte(body)}
}

func (f *fakeClient) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	f.calls[rawURL]++
	if f.err != nil {
		return nil, f.err
	}
	body := f.body
	if b, ok := f.bodies[rawURL]; ok {
		body = []byte(b)
	}
	return &fetch.Response{URL: rawURL, StatusCode: 200, Body: body}, nil
}

func TestGetOrFetchDownloadsOnce(t *testing.T) {
	client := newFakeClient("image-bytes")
	cache := NewCache(t.TempDir(), client)

	url := "https://img.test/covers/game-1.png"
	first := cache.GetOrFetch(context.Background(), url, "Game 1", "2026-08-31")
	if first == "" {
		t.Fatalf("expected a cached path")
	}

	second := cache.GetOrFetch(context.Background(), url, "Game 1", "2026-08-31")
	if second != first {
		t.Fatalf("paths differ: %q vs %q", first, second)
	}
	if got := client.calls[url]; got != 1 {
		t.Fatalf("fetch calls = %d, want exactly 1", got)
	}

	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("cached bytes = %q", data)
	}
}

func TestGetOrFetchSurvivesAcrossCacheInstances(t *testing.T) {
	dir := t.TempDir()
	client := newFakeClient("image-bytes")
	url := "https://img.test/covers/game-2.png"

	first := NewCache(dir, client).GetOrFetch(context.Background(), url, "Game 2", "2026-08-30")
	second := NewCache(dir, client).GetOrFetch(context.Background(), url, "Game 2", "2026-08-31")

	if first == "" || first != second {
		t.Fatalf("stable URL should hit the same file across runs: %q vs %q", first, second)
	}
	if got := client.calls[url]; got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}

func TestGetOrFetchFailureReturnsEmpty(t *testing.T) {
	client := newFakeClient("")
	client.err = errors.New("boom")
	cache := NewCache(t.TempDir(), client)

	if path := cache.GetOrFetch(context.Background(), "https://img.test/broken.png", "Game", "2026-08-31"); path != "" {
		t.Fatalf("path = %q, want empty on download failure", path)
	}
}

func TestGetOrFetchEmptyURL(t *testing.T) {
	client := newFakeClient("")
	cache := NewCache(t.TempDir(), client)

	if path := cache.GetOrFetch(context.Background(), "", "Game", "2026-08-31"); path != "" {
		t.Fatalf("path = %q, want empty for empty URL", path)
	}
	if len(client.calls) != 0 {
		t.Fatalf("no fetch should happen for an empty URL")
	}
}

func TestGetOrFetchDistinctURLsSameSegment(t *testing.T) {
	client := newFakeClient("")
	urlA := "https://img.test/game-a/347x500.png"
	urlB := "https://img.test/game-b/347x500.png"
	client.bodies = map[string]string{urlA: "image-A", urlB: "image-B"}
	cache := NewCache(t.TempDir(), client)

	pathA := cache.GetOrFetch(context.Background(), urlA, "Game A", "2026-08-31")
	pathB := cache.GetOrFetch(context.Background(), urlB, "Game B", "2026-08-31")

	if pathA == "" || pathB == "" {
		t.Fatalf("both URLs should cache: %q, %q", pathA, pathB)
	}
	if pathA == pathB {
		t.Fatalf("distinct URLs mapped to the same file %q", pathA)
	}
	if client.calls[urlA] != 1 || client.calls[urlB] != 1 {
		t.Fatalf("fetch calls = %v, want one per URL", client.calls)
	}

	data, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != "image-B" {
		t.Fatalf("second URL serves %q, want image-B", data)
	}
}

func TestFilenameDerivation(t *testing.T) {
	cache := NewCache("thumbs", nil)

	tests := []struct {
		name string
		url  string
		hint string
		want *regexp.Regexp
	}{
		{
			name: "stable segment",
			url:  "https://img.test/covers/abc123.png?w=300",
			hint: "Some Game",
			want: regexp.MustCompile(`^abc123-[0-9a-f]{8}\.png$`),
		},
		{
			name: "segment sanitized",
			url:  "https://img.test/covers/hash%20value.jpeg",
			hint: "Some Game",
			want: regexp.MustCompile(`^hash_value-[0-9a-f]{8}\.jpeg$`),
		},
		{
			name: "no segment falls back to date and hint",
			url:  "https://img.test/",
			hint: "Space: The Game!",
			want: regexp.MustCompile(`^2026-08-31_Space__The_Game_-[0-9a-f]{8}\.img$`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cache.filename(tt.url, tt.hint, "2026-08-31")
			if !tt.want.MatchString(got) {
				t.Fatalf("filename = %q, want match for %q", got, tt.want)
			}
			if again := cache.filename(tt.url, tt.hint, "2026-08-31"); again != got {
				t.Fatalf("filename not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestFilenameTruncatesIdentity(t *testing.T) {
	cache := NewCache("thumbs", nil)
	long := strings.Repeat("x", 200)

	name := cache.filename("https://img.test/", long, "2026-08-31")
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) > len("2026-08-31_")+maxIdentityLen+len("-deadbeef") {
		t.Fatalf("identity not truncated: %d chars", len(base))
	}
}

func TestNoPartialFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	client := newFakeClient("bytes")
	cache := NewCache(dir, client)

	cache.GetOrFetch(context.Background(), "https://img.test/covers/game.png", "Game", "2026-08-31")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".thumb-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
