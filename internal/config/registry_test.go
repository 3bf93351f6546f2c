package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/jargonaut/internal/config"
	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	llmmock "github.com/MrWong99/jargonaut/pkg/provider/llm/mock"
	"github.com/MrWong99/jargonaut/pkg/provider/search"
	searchmock "github.com/MrWong99/jargonaut/pkg/provider/search/mock"
)

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	var got config.ProviderEntry
	r.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return &llmmock.Provider{ModelName: e.Model}, nil
	})

	p, err := r.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o", APIKey: "sk"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p.Model() != "gpt-4o" || got.APIKey != "sk" {
		t.Errorf("provider model %q, entry %+v", p.Model(), got)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	_, err := r.CreateTTS(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("stt err = %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("missing api key")
	r := config.NewRegistry()
	r.RegisterSearch("tavily", func(config.ProviderEntry) (search.Provider, error) { return nil, boom })
	_, err := r.CreateSearch(config.ProviderEntry{Name: "tavily"})
	if !errors.Is(err, boom) || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	factory := func(config.ProviderEntry) (search.Provider, error) { return &searchmock.Provider{}, nil }
	r.RegisterSearch("tavily", factory)
	r.RegisterSearch("brave", factory)
	if got := r.Names("search"); !slices.Equal(got, []string{"brave", "tavily"}) {
		t.Errorf("Names = %v", got)
	}
	if got := r.Names("vad"); got != nil {
		t.Errorf("unknown kind = %v", got)
	}
}
