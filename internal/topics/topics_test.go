package topics

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptr(s string) *string { return &s }

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		summary *string
		want    []string
	}{
		{
			name:    "llm article",
			title:   "GPT-4 Large Language Models",
			summary: ptr("A new LLM model"),
			want:    []string{"LLM"},
		},
		{
			name:    "multimodal",
			title:   "DALL-E: Multimodal Image Generation",
			summary: ptr("Vision and text"),
			want:    []string{"Multimodal"},
		},
		{
			name:    "several topics in rule order",
			title:   "Fine-tuning a RLHF model with GPT",
			summary: ptr("Reinforcement learning and LLM training"),
			want:    []string{"LLM", "RL", "Optimization"},
		},
		{
			name:  "nothing matches",
			title: "Random article about cooking",
			want:  nil,
		},
		{
			name:  "short keyword inside a longer word",
			title: "World news",
			want:  []string{"RL"},
		},
		{
			name:    "summary only",
			title:   "Weekly digest",
			summary: ptr("Notes on PORTFOLIO construction"),
			want:    []string{"Finance"},
		},
		{
			name:    "title and summary joined by a space",
			title:   "large language",
			summary: ptr("model"),
			want:    []string{"LLM"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.title, tt.summary)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// naive is the reference: one strings.Contains per keyword.
func naive(rules []Rule, title string, summary *string) []string {
	text := title + " "
	if summary != nil {
		text += *summary
	}
	text = strings.ToLower(text)
	var out []string
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				out = append(out, r.Label)
				break
			}
		}
	}
	return out
}

func TestClassifierMatchesSubstringSemantics(t *testing.T) {
	corpus := []string{
		"Scaling laws for transformer inference on a single GPU",
		"Hugging Face releases an open source dataset for retrieval augmented generation",
		"Portfolio optimization with deep reinforcement learning agents",
		"Interpretability of vision-language models: a safety perspective",
		"Function calling and tool use in autonomous systems",
		"Quantization-aware training reduces VRAM at serving time",
		"Q-learning for algorithmic trading under market risk",
		"CLIP embeddings for semantic search over a knowledge base",
		"Synthetic data pretraining and annotation pipelines",
		"A plugin integration for product teams",
		"Ethics, fairness and bias in responsible AI",
		"Über-große Sprachmodelle: ÉTUDE",
		"",
	}

	c := New(DefaultRules)
	for _, text := range corpus {
		for _, summary := range []*string{nil, ptr(text)} {
			want := naive(DefaultRules, "x", summary)
			got := c.Classify("x", summary)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Classify(%q) mismatch (-want +got):\n%s", text, diff)
			}
		}
		want := naive(DefaultRules, text, nil)
		if diff := cmp.Diff(want, c.Classify(text, nil)); diff != "" {
			t.Errorf("Classify(%q) mismatch (-want +got):\n%s", text, diff)
		}
	}
}

func TestClassifierDeterministic(t *testing.T) {
	title := "RAG pipelines for LLM agents"
	summary := ptr("Retrieval, tool use and evaluation datasets")
	want := Extract(title, summary)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if diff := cmp.Diff(want, Extract(title, summary)); diff != "" {
					t.Errorf("Extract() not deterministic (-want +got):\n%s", diff)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestClassifierSharedKeyword(t *testing.T) {
	c := New([]Rule{
		{Label: "A", Keywords: []string{"shared", "alpha"}},
		{Label: "B", Keywords: []string{"SHARED"}},
		{Label: "C", Keywords: []string{""}},
	})

	if diff := cmp.Diff([]string{"A", "B"}, c.Classify("a shared thing", nil)); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}

	empty := New(nil)
	if got := empty.Classify("anything", nil); got != nil {
		t.Errorf("empty classifier should match nothing, got %v", got)
	}
}
