// Package learning persists resolution outcomes so the pipeline improves
// from explicit corrections and implicit success/failure signals. All writes
// are fire-and-forget: they go through a background Recorder and their
// failure never alters an already-computed response.
package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbrou/kouakou/internal/kouakou/store"
	"github.com/kbrou/kouakou/internal/kouakou/textutil"
)

// Learning types stored per record.
const (
	typeSuccess    = "successful_intent"
	typeFailure    = "failed_intent"
	typeCorrection = "user_correction"
)

// Confidence assigned per record type. A user correction is near certain; a
// failure is recorded mostly for later analysis.
const (
	successConfidence    = 0.8
	failureConfidence    = 0.3
	correctionConfidence = 0.9
)

// ReuseFloor is the minimum relevance score a stored learning needs before
// FindSimilar will reuse it for a new message.
const ReuseFloor = 2.0

// Record is a reusable learning, the shape FindSimilar returns.
type Record struct {
	ID          string
	UserMessage string
	Intent      string
	Params      map[string]any
	Response    string
	Score       float64
	UsageCount  int
}

// Service is the learning store front. Reads are synchronous (FindSimilar
// sits on the resolution path); writes are fire-and-forget.
type Service struct {
	store *store.Store
	rec   *Recorder
	cache *keywordCache
	log   *slog.Logger
}

// NewService returns a learning Service backed by st.
// A nil log falls back to slog.Default().
func NewService(st *store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: st,
		rec:   NewRecorder(log),
		cache: newKeywordCache(defaultCacheSize),
		log:   log,
	}
}

// Recorder exposes the background submitter, mainly so tests can wait for
// pending writes.
func (s *Service) Recorder() *Recorder {
	return s.rec
}

// RecordSuccess notes that a message resolved to an intent and the action
// executed. When a similar learning for the same intent already exists its
// usage counter is bumped instead of creating a near duplicate.
func (s *Service) RecordSuccess(projetID, message, intentName string, params map[string]any, confidence float64) {
	if confidence <= 0 {
		confidence = successConfidence
	}
	s.rec.submit("record_success", func(ctx context.Context) error {
		keywords := textutil.Keywords(message)
		matches, err := s.store.SearchLearningsByKeywords(ctx, projetID, keywords, 1)
		if err == nil && len(matches) > 0 &&
			matches[0].TotalScore >= ReuseFloor &&
			matches[0].CorrectIntent.String == intentName {
			return s.store.IncrementUsage(ctx, matches[0].LearningID)
		}
		return s.persist(ctx, projetID, typeSuccess, message, intentName, intentName, params, "", confidence)
	})
}

// RecordFailure notes that a message could not be resolved (or its action
// failed). Failures are kept for analysis, never reused directly.
func (s *Service) RecordFailure(projetID, message, detectedIntent string) {
	s.rec.submit("record_failure", func(ctx context.Context) error {
		return s.persist(ctx, projetID, typeFailure, message, detectedIntent, "", nil, "", failureConfidence)
	})
}

// RecordCorrection notes that the user corrected a resolution. The corrected
// intent is stored with high confidence and the keyword cache entry for the
// message is dropped so the stale resolution stops being served.
func (s *Service) RecordCorrection(projetID, message, detectedIntent, correctIntent string, params map[string]any) {
	s.cache.invalidate(cacheKey(projetID, textutil.Keywords(message)))
	s.rec.submit("record_correction", func(ctx context.Context) error {
		return s.persist(ctx, projetID, typeCorrection, message, detectedIntent, correctIntent, params, "", correctionConfidence)
	})
}

func (s *Service) persist(ctx context.Context, projetID, learningType, message, detectedIntent, correctIntent string, params map[string]any, response string, confidence float64) error {
	keywords := textutil.Keywords(message)

	var paramsJSON sql.NullString
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		paramsJSON = sql.NullString{String: string(data), Valid: true}
	}

	l := &store.Learning{
		ID:                "learn_" + uuid.NewString(),
		ProjetID:          projetID,
		LearningType:      learningType,
		UserMessage:       message,
		NormalizedMessage: textutil.Normalize(message),
		Keywords:          keywords,
		DetectedIntent:    nullString(detectedIntent),
		CorrectIntent:     nullString(correctIntent),
		Params:            paramsJSON,
		MemorizedResponse: nullString(response),
		Confidence:        confidence,
	}

	id, err := s.store.UpsertLearning(ctx, l)
	if err != nil {
		return err
	}

	indexIntent := correctIntent
	if indexIntent == "" {
		indexIntent = detectedIntent
	}
	if indexIntent != "" && len(keywords) > 0 {
		if err := s.store.IndexKeywords(ctx, id, keywords, indexIntent); err != nil {
			return err
		}
	}
	return nil
}

// FindSimilar looks for a reusable learning matching the message's keywords.
// It probes the in-process cache first; a cache hit bumps the stored usage
// counter in the background without blocking the caller. Nil means nothing
// scored above the reuse floor.
func (s *Service) FindSimilar(ctx context.Context, projetID, message string) (*Record, error) {
	keywords := textutil.Keywords(message)
	if len(keywords) == 0 {
		return nil, nil
	}

	key := cacheKey(projetID, keywords)
	if rec, ok := s.cache.get(key); ok {
		s.rec.submit("cache_hit_usage", func(ctx context.Context) error {
			return s.store.IncrementUsage(ctx, rec.ID)
		})
		return rec, nil
	}

	matches, err := s.store.SearchLearningsByKeywords(ctx, projetID, keywords, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 || matches[0].TotalScore < ReuseFloor {
		return nil, nil
	}

	best := matches[0]
	rec := &Record{
		ID:          best.LearningID,
		UserMessage: best.UserMessage,
		Intent:      best.CorrectIntent.String,
		Score:       best.TotalScore,
		UsageCount:  best.UsageCount,
	}
	if rec.Intent == "" {
		rec.Intent = best.DetectedIntent.String
	}

	// Backfill the memorized response and params from the full record.
	if full, err := s.store.GetLearning(ctx, best.LearningID); err == nil {
		rec.Response = full.MemorizedResponse.String
		if full.Params.Valid {
			var params map[string]any
			if err := json.Unmarshal([]byte(full.Params.String), &params); err == nil {
				rec.Params = params
			}
		}
	}

	if rec.Intent == "" {
		return nil, nil
	}

	s.cache.put(key, rec)
	return rec, nil
}

// IncrementUsage bumps a learning's usage counter synchronously.
func (s *Service) IncrementUsage(ctx context.Context, id string) error {
	return s.store.IncrementUsage(ctx, id)
}

// UsageCount reports how often the intent was successfully resolved for the
// project. Errors degrade to zero: a broken tie-break must never break
// retrieval.
func (s *Service) UsageCount(projectID, intentName string) int {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	n, err := s.store.IntentUsageCount(ctx, projectID, intentName)
	if err != nil {
		s.log.Warn("learning: usage count lookup failed", "intent", intentName, "err", err)
		return 0
	}
	return n
}

// LastCorrectedAt reports when the intent was last corrected for the
// project; zero when never or on error.
func (s *Service) LastCorrectedAt(projectID, intentName string) time.Time {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	at, err := s.store.LastCorrectionAt(ctx, projectID, intentName)
	if err != nil {
		s.log.Warn("learning: last correction lookup failed", "intent", intentName, "err", err)
		return time.Time{}
	}
	return at
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func cacheKey(projetID string, keywords []string) string {
	n := len(keywords)
	if n > 3 {
		n = 3
	}
	return projetID + "|" + strings.Join(keywords[:n], " ")
}
