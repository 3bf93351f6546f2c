// Package voice fronts the speech providers for the rest of the service.
//
// [Service] maps Jargonaut voice styles onto provider voices, validates and
// clamps synthesis requests, and records every transcription in a bounded
// in-memory job registry. Transcripts are passed through glossary correction
// before they are returned, using the terms from configuration plus the most
// popular terms of the knowledge base.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/internal/transcript"
	"github.com/MrWong99/jargonaut/internal/transcript/phonetic"
	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// Sentinel errors.
var (
	ErrNoTTS       = errors.New("voice: no text-to-speech provider configured")
	ErrNoSTT       = errors.New("voice: no speech-to-text provider configured")
	ErrEmptyText   = errors.New("voice: text is required")
	ErrTextTooLong = errors.New("voice: text too long")
	ErrEmptyAudio  = errors.New("voice: audio is empty")
	ErrJobNotFound = errors.New("voice: transcription job not found")
)

// Defaults.
const (
	DefaultStyle         = "professional_female"
	DefaultLanguage      = "en-US"
	DefaultMaxTextLength = 5000
	MinSpeed             = 0.5
	MaxSpeed             = 2.0

	// glossaryPopularLimit caps how many knowledge-base terms join the
	// correction glossary on each refresh.
	glossaryPopularLimit = 200
)

// DefaultStyles maps voice styles to provider voice IDs.
var DefaultStyles = map[string]string{
	"professional_female":   "aurora",
	"professional_male":     "atlas",
	"conversational_female": "bella",
	"conversational_male":   "caleb",
}

// TermSource supplies popular glossary terms. knowledge.Store satisfies it.
type TermSource interface {
	Popular(ctx context.Context, limit int) ([]types.Suggestion, error)
}

// Refiner is an optional second correction pass over a transcript that has
// already been through glossary correction. llmcorrect.Corrector satisfies it.
type Refiner interface {
	Refine(ctx context.Context, text string, glossary []string) (string, []transcript.Correction, error)
}

// ── Options ───────────────────────────────────────────────────────────────────

// Option configures a [Service].
type Option func(*Service)

// WithTTS sets the synthesis backend and the name it is reported under.
func WithTTS(p tts.Provider, name string) Option {
	return func(s *Service) { s.tts, s.ttsName = p, name }
}

// WithSTT sets the recognition backend and the name it is reported under.
func WithSTT(p stt.Provider, name string) Option {
	return func(s *Service) { s.stt, s.sttName = p, name }
}

// WithStyles overrides individual style to voice ID mappings. Styles not
// present keep their default voice.
func WithStyles(styles map[string]string) Option {
	return func(s *Service) {
		for style, id := range styles {
			if id != "" {
				s.styles[style] = id
			}
		}
	}
}

// WithDefaultStyle sets the style used for unknown or empty style names.
func WithDefaultStyle(style string) Option {
	return func(s *Service) {
		if style != "" {
			s.defaultStyle = style
		}
	}
}

// WithMaxTextLength sets the synthesis text limit in runes.
func WithMaxTextLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTextLength = n
		}
	}
}

// WithJobLimit bounds the transcription job registry.
func WithJobLimit(n int) Option {
	return func(s *Service) { s.jobs = newJobRegistry(n) }
}

// WithTermSource adds popular knowledge-base terms to the glossary on every
// [Service.RefreshGlossary].
func WithTermSource(src TermSource) Option {
	return func(s *Service) { s.terms = src }
}

// WithGlossary sets the configured glossary terms.
func WithGlossary(terms []string) Option {
	return func(s *Service) { s.configTerms = slices.Clone(terms) }
}

// WithCorrector overrides the transcript corrector.
func WithCorrector(c *transcript.Corrector) Option {
	return func(s *Service) { s.corrector = c }
}

// WithRefiner enables a second correction pass after glossary correction.
func WithRefiner(r Refiner) Option {
	return func(s *Service) { s.refiner = r }
}

// WithMetrics overrides the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// ── Service ───────────────────────────────────────────────────────────────────

// Service is safe for concurrent use.
type Service struct {
	tts     tts.Provider
	ttsName string
	stt     stt.Provider
	sttName string
	terms   TermSource

	styles        map[string]string
	defaultStyle  string
	maxTextLength int

	corrector *transcript.Corrector
	refiner   Refiner
	jobs      *jobRegistry
	metrics   *observe.Metrics
	now       func() time.Time

	mu           sync.Mutex
	configTerms  []string
	popularTerms []string
	glossary     atomic.Pointer[glossarySnapshot]
}

type glossarySnapshot struct {
	terms    []string
	prepared *phonetic.Glossary
}

// New returns a Service. Either provider may be absent; the corresponding
// operations then fail with [ErrNoTTS] or [ErrNoSTT].
func New(opts ...Option) *Service {
	s := &Service{
		styles:        maps.Clone(DefaultStyles),
		defaultStyle:  DefaultStyle,
		maxTextLength: DefaultMaxTextLength,
		jobs:          newJobRegistry(DefaultJobLimit),
		now:           time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.corrector == nil {
		s.corrector = transcript.NewCorrector(nil)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if _, ok := s.styles[s.defaultStyle]; !ok {
		s.defaultStyle = DefaultStyle
	}
	s.rebuildGlossary()
	return s
}

// HasTTS reports whether synthesis is available.
func (s *Service) HasTTS() bool { return s.tts != nil }

// HasSTT reports whether transcription is available.
func (s *Service) HasSTT() bool { return s.stt != nil }

// ── Synthesis ─────────────────────────────────────────────────────────────────

// Speech is one synthesised utterance ready to be served.
type Speech struct {
	Data   []byte
	Format audio.Format
}

// ContentType returns the MIME type of the audio.
func (sp *Speech) ContentType() string { return sp.Format.ContentType() }

// Filename returns the attachment name, e.g. "speech.wav".
func (sp *Speech) Filename() string { return "speech." + sp.Format.Extension() }

// StyleVoice describes the provider voice behind one style.
type StyleVoice struct {
	Style   string `json:"style"`
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

// ResolveStyle returns the style actually used for style and its voice ID.
// Unknown styles fall back to the default style.
func (s *Service) ResolveStyle(style string) (string, string) {
	if id, ok := s.styles[style]; ok {
		return style, id
	}
	return s.defaultStyle, s.styles[s.defaultStyle]
}

// ClampSpeed limits speed to [MinSpeed, MaxSpeed]. Zero means 1.0.
func ClampSpeed(speed float64) float64 {
	if speed == 0 {
		return 1.0
	}
	return min(max(speed, MinSpeed), MaxSpeed)
}

// Synthesize renders text in the given style. The audio format is detected
// from the payload: a RIFF header means WAV, anything else MP3.
func (s *Service) Synthesize(ctx context.Context, text, style string, speed float64) (*Speech, error) {
	if s.tts == nil {
		return nil, ErrNoTTS
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if n := utf8.RuneCountInString(text); n > s.maxTextLength {
		return nil, fmt.Errorf("%w: %d characters exceeds %d", ErrTextTooLong, n, s.maxTextLength)
	}

	resolved, id := s.ResolveStyle(style)
	start := s.now()
	spanCtx, span := observe.StartSpan(ctx, "voice.synthesize")
	out, err := s.tts.Synthesize(spanCtx, text, tts.Voice{ID: id, Style: resolved, Speed: ClampSpeed(speed)})
	observe.EndSpan(span, err)
	s.metrics.TTSDuration.Record(ctx, s.now().Sub(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.ttsName, "tts")
		s.metrics.RecordProviderRequest(ctx, s.ttsName, "tts", "error")
		return nil, fmt.Errorf("voice: synthesize: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.ttsName, "tts", "ok")
	return &Speech{Data: out.Data, Format: audio.DetectFormat(out.Data)}, nil
}

// Voices lists the configured styles and their voices, sorted by style. The
// provider catalogue supplies display names where it knows the voice.
func (s *Service) Voices(ctx context.Context) []StyleVoice {
	names := map[string]string{}
	if s.tts != nil {
		catalogue, err := s.tts.Voices(ctx)
		if err != nil {
			slog.Warn("voice: listing provider voices failed", "provider", s.ttsName, "err", err)
		}
		for _, v := range catalogue {
			names[v.ID] = v.Name
		}
	}
	out := make([]StyleVoice, 0, len(s.styles))
	for _, style := range slices.Sorted(maps.Keys(s.styles)) {
		id := s.styles[style]
		name := names[id]
		if name == "" {
			name = displayName(id)
		}
		out = append(out, StyleVoice{Style: style, VoiceID: id, Name: name})
	}
	return out
}

// TTSProvider returns the configured synthesis provider name.
func (s *Service) TTSProvider() string { return s.ttsName }

func displayName(id string) string {
	if id == "" {
		return id
	}
	r, size := utf8.DecodeRuneInString(id)
	return strings.ToUpper(string(r)) + id[size:]
}

// ── Transcription ─────────────────────────────────────────────────────────────

// Transcribe recognises data, corrects the result against the glossary and
// returns it. The call is recorded as a job.
func (s *Service) Transcribe(ctx context.Context, data []byte, opts stt.Options) (types.Transcript, error) {
	job, err := s.TranscribeJob(ctx, data, opts)
	if err != nil {
		return types.Transcript{}, err
	}
	return types.Transcript{Text: job.Text, Confidence: job.Confidence, Language: job.LanguageCode, IsFinal: true}, nil
}

// TranscribeJob is Transcribe returning the full job record. A failed
// recognition is still recorded, with status failed.
func (s *Service) TranscribeJob(ctx context.Context, data []byte, opts stt.Options) (Job, error) {
	if s.stt == nil {
		return Job{}, ErrNoSTT
	}
	if len(data) == 0 {
		return Job{}, ErrEmptyAudio
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = DefaultLanguage
	}
	opts.MediaFormat = opts.Format(data)

	snap := s.glossary.Load()
	opts.Keywords = append(slices.Clone(opts.Keywords), snap.terms...)

	job := Job{
		Name:         "jargonaut-" + uuid.NewString(),
		Status:       JobInProgress,
		LanguageCode: opts.LanguageCode,
		MediaFormat:  string(opts.MediaFormat),
		CreatedAt:    s.now().UTC(),
	}
	s.jobs.put(job)

	start := s.now()
	spanCtx, span := observe.StartSpan(ctx, "voice.transcribe")
	tr, err := s.stt.Transcribe(spanCtx, data, opts)
	observe.EndSpan(span, err)
	done := s.now().UTC()
	s.metrics.STTDuration.Record(ctx, done.Sub(start).Seconds())
	job.CompletedAt = &done
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.sttName, "stt")
		s.metrics.RecordProviderRequest(ctx, s.sttName, "stt", "error")
		job.Status = JobFailed
		job.Error = err.Error()
		s.jobs.put(job)
		return job, fmt.Errorf("voice: transcribe: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.sttName, "stt", "ok")

	res := s.corrector.Correct(tr, snap.prepared)
	text, corrections := res.Text, res.Corrections
	if s.refiner != nil && len(snap.terms) > 0 {
		refined, extra, err := s.refiner.Refine(ctx, text, snap.terms)
		if err != nil {
			observe.Logger(ctx).Warn("voice: transcript refinement failed", "job", job.Name, "err", err)
		} else {
			text = refined
			corrections = append(corrections, extra...)
		}
	}
	if len(corrections) > 0 {
		slog.Debug("voice: glossary corrections applied", "job", job.Name, "corrections", len(corrections))
	}
	job.Status = JobCompleted
	job.Text = text
	job.Confidence = tr.Confidence
	job.Corrections = corrections
	s.jobs.put(job)
	return job, nil
}

// Jobs lists up to limit recorded jobs, newest first. limit <= 0 lists all.
func (s *Service) Jobs(limit int) []Job { return s.jobs.list(limit) }

// Job returns the named job.
func (s *Service) Job(name string) (Job, error) {
	j, ok := s.jobs.get(name)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return j, nil
}

// DeleteJob removes the named job.
func (s *Service) DeleteJob(name string) error {
	if !s.jobs.remove(name) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return nil
}

// ── Glossary ──────────────────────────────────────────────────────────────────

// SetGlossary replaces the configured glossary terms.
func (s *Service) SetGlossary(terms []string) {
	s.mu.Lock()
	s.configTerms = slices.Clone(terms)
	s.mu.Unlock()
	s.rebuildGlossary()
}

// RefreshGlossary reloads the popular terms from the term source. Without a
// source it only rebuilds from the configured terms.
func (s *Service) RefreshGlossary(ctx context.Context) error {
	if s.terms != nil {
		popular, err := s.terms.Popular(ctx, glossaryPopularLimit)
		if err != nil {
			return fmt.Errorf("voice: refresh glossary: %w", err)
		}
		terms := make([]string, 0, len(popular))
		for _, p := range popular {
			terms = append(terms, p.Term)
		}
		s.mu.Lock()
		s.popularTerms = terms
		s.mu.Unlock()
	}
	s.rebuildGlossary()
	return nil
}

// GlossaryTerms returns the terms currently used for correction.
func (s *Service) GlossaryTerms() []string {
	return slices.Clone(s.glossary.Load().terms)
}

func (s *Service) rebuildGlossary() {
	s.mu.Lock()
	all := make([]string, 0, len(s.configTerms)+len(s.popularTerms))
	all = append(all, s.configTerms...)
	all = append(all, s.popularTerms...)
	s.mu.Unlock()

	seen := make(map[string]struct{}, len(all))
	terms := all[:0]
	for _, t := range all {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, strings.TrimSpace(t))
	}
	s.glossary.Store(&glossarySnapshot{terms: terms, prepared: phonetic.Prepare(terms)})
}
