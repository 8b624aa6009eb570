package safety

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	wl "github.com/abadojack/whatlanggo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/patterns"
)

const (
	DefaultMaxInputChars  = 1000
	DefaultMaxOutputChars = 2000
)

type Option func(*Validator)

func WithMaxInputChars(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxInputChars = n
		}
	}
}

func WithMaxOutputChars(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxOutputChars = n
		}
	}
}

// Validator is the ordered pattern gate applied before retrieval and after
// generation. It holds no mutable state.
type Validator struct {
	set            *patterns.Set
	maxInputChars  int
	maxOutputChars int
}

func NewValidator(set *patterns.Set, opts ...Option) *Validator {
	v := &Validator{
		set:            set,
		maxInputChars:  DefaultMaxInputChars,
		maxOutputChars: DefaultMaxOutputChars,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateInput runs the checks in precedence order; the first that fires
// decides the verdict.
func (v *Validator) ValidateInput(ctx context.Context, text string) model.ValidationResult {
	lang := DetectLanguage(text)
	msgs := v.set.Messages(lang)
	if strings.TrimSpace(text) == "" {
		return reject(model.ReasonEmptyInput, msgs.EmptyInput, lang)
	}
	lower := patterns.Normalize(text)
	logger := logutil.GetLogger(ctx)

	switch {
	case v.set.PromptInjection.Match(lower):
		logger.Warn("input rejected", zap.String("reason", string(model.ReasonPromptInjection)))
		return reject(model.ReasonPromptInjection, msgs.PromptInjection, lang)
	case v.set.Inappropriate.Match(lower):
		logger.Warn("input rejected", zap.String("reason", string(model.ReasonInappropriateContent)))
		return reject(model.ReasonInappropriateContent, msgs.InappropriateContent, lang)
	case v.set.Illegal.Match(lower):
		logger.Warn("input rejected", zap.String("reason", string(model.ReasonIllegalContent)))
		return reject(model.ReasonIllegalContent, msgs.IllegalContent, lang)
	}
	if kw, ok := v.set.Emergency.Find(lower); ok {
		logger.Warn("emergency input detected", zap.String("keyword", kw))
		return model.ValidationResult{IsValid: true, IsEmergency: true, Response: msgs.Emergency, Lang: lang}
	}
	if utf8.RuneCountInString(text) > v.maxInputChars {
		return reject(model.ReasonInputTooLong, msgs.InputTooLong, lang)
	}
	if v.isTopical(lower) || v.set.QuestionMarkers.Match(lower) {
		return model.ValidationResult{IsValid: true, Lang: lang}
	}
	friendly := msgs.Friendly
	if name, ok := v.extractName(lower); ok {
		friendly = fmt.Sprintf(msgs.FriendlyNamed, name)
	}
	logger.Debug("off-topic input redirected")
	return model.ValidationResult{IsValid: true, OverrideResponse: friendly, Lang: lang}
}

// isTopical accepts greetings and anything touching the medical, product,
// price, faq or site vocabularies.
func (v *Validator) isTopical(lower string) bool {
	families := []*patterns.KeywordFamily{
		v.set.Greeting,
		v.set.Medical,
		v.set.Web,
		v.set.FAQ,
		v.set.Product,
		v.set.Price,
	}
	for _, f := range families {
		if f.Match(lower) {
			return true
		}
	}
	return false
}

func (v *Validator) extractName(lower string) (string, bool) {
	for _, re := range v.set.NameIntroduction.Regexps() {
		m := re.FindStringSubmatch(lower)
		if len(m) < 2 {
			continue
		}
		candidate := strings.TrimFunc(m[1], func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		})
		if candidate == "" {
			continue
		}
		if _, stop := v.set.NameStopwords[candidate]; stop {
			continue
		}
		return cases.Title(language.Und).String(candidate), true
	}
	return "", false
}

// ValidateOutput only appends to the response, except for the final length
// cut.
func (v *Validator) ValidateOutput(ctx context.Context, text string, isMedical bool) string {
	msgs := v.set.Messages(DetectLanguage(text))
	if strings.TrimSpace(text) == "" {
		return msgs.EmptyOutput
	}
	lower := patterns.Normalize(text)
	if v.set.HarmfulOutput.Match(lower) && !v.set.DoctorAck.Match(lower) {
		logutil.GetLogger(ctx).Info("harmful advice detected in output, appending warning")
		text += msgs.DoctorWarning
		lower = patterns.Normalize(text)
	}
	if isMedical && !v.set.DisclaimerMarkers.Match(lower) {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text += msgs.Disclaimer
	}
	runes := []rune(text)
	if len(runes) > v.maxOutputChars {
		text = strings.TrimRightFunc(string(runes[:v.maxOutputChars]), unicode.IsSpace) + msgs.Truncated
	}
	return text
}

func (v *Validator) IsMedicalQuestion(text string) bool {
	return v.set.Medical.Match(patterns.Normalize(text))
}

// ExtractEntities pulls symptom phrases such as "đau X" out of text.
func (v *Validator) ExtractEntities(text string) model.Entities {
	return model.Entities{
		Symptoms:    nonNil(v.set.SymptomExtract.AllSubmatches(patterns.Normalize(text))),
		Medications: []string{},
		Conditions:  []string{},
	}
}

// DetectLanguage picks the reply language: English only when the detector is
// confident, Vietnamese otherwise.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return patterns.LangVI
	}
	info := wl.Detect(text)
	if info.Lang == wl.Eng && info.IsReliable() {
		return patterns.LangEN
	}
	return patterns.LangVI
}

func reject(reason model.RejectReason, response, lang string) model.ValidationResult {
	return model.ValidationResult{IsValid: false, Reason: reason, Response: response, Lang: lang}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
