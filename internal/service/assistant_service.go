package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/intent"
	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
	"github.com/xxxsen/medrag/internal/rag"
	"github.com/xxxsen/medrag/internal/safety"
)

const defaultCallTimeout = 10 * time.Second

// PrepareResult is everything the answering layer needs before it calls a
// generator: the input verdict, the intent and the evidence block.
type PrepareResult struct {
	Validation model.ValidationResult `json:"validation"`
	Intent     model.Intent           `json:"intent,omitempty"`
	Stage      intent.Stage           `json:"stage,omitempty"`
	Score      float64                `json:"score,omitempty"`
	IsMedical  bool                   `json:"is_medical"`
	Entities   *model.Entities        `json:"entities,omitempty"`
	Context    string                 `json:"context,omitempty"`
	Prices     string                 `json:"prices,omitempty"`
	// Reply is set when no generation should happen: rejected input,
	// emergencies and off-topic redirects.
	Reply string `json:"reply,omitempty"`
}

// AssistantService is the single entry point for downstream callers.
type AssistantService struct {
	validator     *safety.Validator
	classifier    *intent.Classifier
	pipeline      *rag.Pipeline
	intentTimeout time.Duration
	searchTimeout time.Duration
}

func NewAssistantService(validator *safety.Validator, classifier *intent.Classifier, pipeline *rag.Pipeline, intentTimeout, searchTimeout time.Duration) *AssistantService {
	if intentTimeout <= 0 {
		intentTimeout = defaultCallTimeout
	}
	if searchTimeout <= 0 {
		searchTimeout = defaultCallTimeout
	}
	return &AssistantService{
		validator:     validator,
		classifier:    classifier,
		pipeline:      pipeline,
		intentTimeout: intentTimeout,
		searchTimeout: searchTimeout,
	}
}

func (s *AssistantService) ValidateInput(ctx context.Context, text string) model.ValidationResult {
	return s.validator.ValidateInput(ctx, text)
}

func (s *AssistantService) ValidateOutput(ctx context.Context, text string, isMedical bool) string {
	return s.validator.ValidateOutput(ctx, text, isMedical)
}

func (s *AssistantService) DetectIntent(ctx context.Context, text string) intent.Result {
	ctx, cancel := context.WithTimeout(ctx, s.intentTimeout)
	defer cancel()
	return s.classifier.Classify(ctx, text)
}

func (s *AssistantService) BuildContext(ctx context.Context, req rag.ContextRequest) string {
	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()
	return s.pipeline.RetrieveAndBuildContext(ctx, req)
}

func (s *AssistantService) gather(ctx context.Context, req rag.ContextRequest) rag.Evidence {
	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()
	return s.pipeline.Gather(ctx, req)
}

func (s *AssistantService) ExtractEntities(text string) model.Entities {
	return s.validator.ExtractEntities(text)
}

// Prepare validates the question and, when it should be answered, classifies
// it and gathers context.
func (s *AssistantService) Prepare(ctx context.Context, question string) *PrepareResult {
	logger := logutil.GetLogger(ctx)
	verdict := s.ValidateInput(ctx, question)
	res := &PrepareResult{Validation: verdict}
	switch {
	case !verdict.IsValid:
		res.Reply = verdict.Response
		logger.Info("question rejected", zap.String("reason", string(verdict.Reason)))
		return res
	case verdict.IsEmergency:
		res.Reply = verdict.Response
		logger.Info("question redirected to emergency services")
		return res
	case verdict.OverrideResponse != "":
		res.Reply = verdict.OverrideResponse
		return res
	}
	classified := s.DetectIntent(ctx, question)
	res.Intent = classified.Intent
	res.Stage = classified.Stage
	res.Score = classified.Score
	res.IsMedical = s.validator.IsMedicalQuestion(question)
	entities := s.ExtractEntities(question)
	res.Entities = &entities
	if classified.Intent != model.IntentGreeting {
		ev := s.gather(ctx, rag.ContextRequest{Question: question, Intent: classified.Intent})
		res.Context = ev.Context
		res.Prices = ev.Prices
	}
	logger.Info("question prepared",
		zap.String("intent", string(res.Intent)),
		zap.String("stage", string(res.Stage)),
		zap.Bool("is_medical", res.IsMedical),
		zap.Int("context_len", len(res.Context)),
	)
	return res
}

// DebugRetrieval reports raw retrieval quality for query. Unlike the other
// entry points it returns upstream failures.
func (s *AssistantService) DebugRetrieval(ctx context.Context, query string, k int) (*rag.RetrievalReport, error) {
	if strings.TrimSpace(query) == "" {
		return nil, appErr.ErrInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()
	return s.pipeline.TestRetrieval(ctx, query, k)
}

func (s *AssistantService) DocumentCount(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()
	return s.pipeline.DocumentCount(ctx)
}
