package transcript_test

import (
	"testing"

	"github.com/MrWong99/jargonaut/internal/transcript"
	"github.com/MrWong99/jargonaut/internal/transcript/phonetic"
	"github.com/MrWong99/jargonaut/pkg/types"
)

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	g := phonetic.Prepare([]string{"Kubernetes", "Postgres", "Docker Compose"})
	c := transcript.NewCorrector(nil)

	tests := []struct {
		name  string
		text  string
		want  string
		fixes int
	}{
		{"single words", "we deploy on kubernetis with postgress", "we deploy on Kubernetes with Postgres", 2},
		{"punctuation kept", "is it (kubernetis)?", "is it (Kubernetes)?", 1},
		{"multi word term", "run docker compost up", "run Docker Compose up", 1},
		{"case only is not a correction", "kubernetes rocks", "Kubernetes rocks", 0},
		{"sentence break splits windows", "docker. compose", "docker. compose", 0},
		{"nothing to fix", "hello there", "hello there", 0},
		{"empty", "", "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := types.Transcript{Text: tc.text, Confidence: 0.9, IsFinal: true}
			res := c.Correct(in, g)
			if res.Text != tc.want {
				t.Errorf("Text = %q, want %q", res.Text, tc.want)
			}
			if len(res.Corrections) != tc.fixes {
				t.Errorf("corrections = %+v, want %d", res.Corrections, tc.fixes)
			}
			if res.Corrections == nil {
				t.Error("Corrections must not be nil")
			}
			if got := res.Transcript(); got.Text != tc.want || got.Confidence != 0.9 {
				t.Errorf("Transcript() = %+v", got)
			}
			if res.Original.Text != tc.text {
				t.Error("original transcript modified")
			}
		})
	}
}

func TestCorrector_EmptyGlossary(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(phonetic.New())
	res := c.Correct(types.Transcript{Text: "kubernetis"}, phonetic.Prepare(nil))
	if res.Text != "kubernetis" || len(res.Corrections) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestCorrector_RecordsMethod(t *testing.T) {
	t.Parallel()

	res := transcript.NewCorrector(nil).Correct(types.Transcript{Text: "kubernetis"}, phonetic.Prepare([]string{"Kubernetes"}))
	if len(res.Corrections) != 1 {
		t.Fatalf("corrections = %+v", res.Corrections)
	}
	got := res.Corrections[0]
	if got.Original != "kubernetis" || got.Corrected != "Kubernetes" || got.Method != "phonetic" || got.Confidence < 0.7 {
		t.Errorf("correction = %+v", got)
	}
}
