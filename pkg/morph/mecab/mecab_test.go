package mecab_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gyojeong/bff/pkg/morph/mecab"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/split" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "안녕하세요. 반갑습니다." {
			t.Errorf("text = %q", req.Text)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"sentences": []string{"안녕하세요.", "반갑습니다."},
		})
	}))
	defer srv.Close()

	a := mecab.New(srv.URL)
	sentences, err := a.Split(context.Background(), "안녕하세요. 반갑습니다.")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(sentences) != 2 || sentences[0] != "안녕하세요." || sentences[1] != "반갑습니다." {
		t.Errorf("sentences = %v", sentences)
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"words": []map[string]any{
				{
					"surface": "밥을",
					"morphemes": []map[string]string{
						{"surface": "밥", "tag": "NNG"},
						{"surface": "을", "tag": "JKO"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	a := mecab.New(srv.URL)
	words, err := a.Analyze(context.Background(), "밥을")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(words) != 1 {
		t.Fatalf("words = %v", words)
	}
	if words[0].Surface != "밥을" || len(words[0].Morphemes) != 2 {
		t.Errorf("word = %+v", words[0])
	}
	if words[0].Morphemes[1].Tag != "JKO" {
		t.Errorf("second morpheme = %+v", words[0].Morphemes[1])
	}
}

func TestAnalyze_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tagger crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := mecab.New(srv.URL)
	if _, err := a.Analyze(context.Background(), "밥을"); err == nil {
		t.Error("Analyze must surface non-200 responses as errors")
	}
}
