// Package patterns holds the keyword and regex families used by the safety
// gate, the intent classifier and the context builder. The families are data:
// a versioned default set is embedded in the binary and operators may overlay
// a JSON file on top of it.
package patterns

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

//go:embed default_patterns.json
var defaultPatterns []byte

const (
	LangVI = "vi"
	LangEN = "en"
)

// Data is the raw, serialisable form of the pattern set.
type Data struct {
	Version           string              `json:"version"`
	PromptInjection   []string            `json:"prompt_injection"`
	Inappropriate     []string            `json:"inappropriate_content"`
	Illegal           []string            `json:"illegal_content"`
	Emergency         []string            `json:"emergency"`
	Price             []string            `json:"price"`
	Product           []string            `json:"product"`
	FAQ               []string            `json:"faq"`
	Web               []string            `json:"web"`
	Medical           []string            `json:"medical"`
	Greeting          []string            `json:"greeting"`
	TrivialGreeting   []string            `json:"trivial_greeting"`
	AskMarkers        []string            `json:"ask_markers"`
	QuestionMarkers   []string            `json:"question_markers"`
	HarmfulOutput     []string            `json:"harmful_output"`
	DoctorAck         []string            `json:"doctor_ack"`
	DisclaimerMarkers []string            `json:"disclaimer_markers"`
	NameIntroduction  []string            `json:"name_introduction"`
	NameStopwords     []string            `json:"name_stopwords"`
	DocFilters        DocFilterData       `json:"doc_filters"`
	CurrencyMarkers   []string            `json:"currency_markers"`
	PriceExtract      []string            `json:"price_extract"`
	ProductName       string              `json:"product_name"`
	SymptomExtract    []string            `json:"symptom_extract"`
	IntentPhrases     map[string][]string `json:"intent_phrases"`
	Messages          map[string]Messages `json:"messages"`
}

type DocFilterData struct {
	Price   []string `json:"price"`
	Product []string `json:"product"`
	Medical []string `json:"medical"`
	FAQ     []string `json:"faq"`
}

// Messages are the user facing strings for one reply language.
type Messages struct {
	EmptyInput           string `json:"empty_input"`
	PromptInjection      string `json:"prompt_injection"`
	InappropriateContent string `json:"inappropriate_content"`
	IllegalContent       string `json:"illegal_content"`
	Emergency            string `json:"emergency"`
	InputTooLong         string `json:"input_too_long"`
	Friendly             string `json:"friendly"`
	FriendlyNamed        string `json:"friendly_named"`
	EmptyOutput          string `json:"empty_output"`
	DoctorWarning        string `json:"doctor_warning"`
	Disclaimer           string `json:"disclaimer"`
	Truncated            string `json:"truncated"`
}

// Set is the compiled pattern set. It is immutable once built and safe for
// concurrent use.
type Set struct {
	Version string

	PromptInjection *RegexFamily
	Inappropriate   *RegexFamily
	Illegal         *RegexFamily
	Emergency       *KeywordFamily

	Price           *KeywordFamily
	Product         *KeywordFamily
	FAQ             *KeywordFamily
	Web             *KeywordFamily
	Medical         *KeywordFamily
	Greeting        *KeywordFamily
	TrivialGreeting *KeywordFamily
	AskMarkers      *KeywordFamily
	QuestionMarkers *KeywordFamily

	HarmfulOutput     *RegexFamily
	DoctorAck         *KeywordFamily
	DisclaimerMarkers *KeywordFamily
	NameIntroduction  *RegexFamily
	NameStopwords     map[string]struct{}

	PriceDocs       *RegexFamily
	ProductDocs     *RegexFamily
	MedicalDocs     *RegexFamily
	FAQDocs         *RegexFamily
	CurrencyMarkers *KeywordFamily
	PriceExtract    *RegexFamily
	ProductName     *regexp.Regexp
	SymptomExtract  *RegexFamily

	IntentPhrases map[string][]string
	messages      map[string]Messages
}

// Default returns the embedded pattern set.
func Default() (*Set, error) {
	data, err := decodeDefault()
	if err != nil {
		return nil, err
	}
	return Compile(data)
}

// MustDefault is Default for tests and package level fixtures.
func MustDefault() *Set {
	set, err := Default()
	if err != nil {
		panic(err)
	}
	return set
}

// Load overlays the JSON file at path on the embedded defaults. Families
// present in the file replace the default family wholesale; absent ones keep
// their default. An empty path yields the defaults.
func Load(path string) (*Set, error) {
	data, err := decodeDefault()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read patterns file: %w", err)
		}
		if err := json.Unmarshal(raw, data); err != nil {
			return nil, fmt.Errorf("decode patterns file: %w", err)
		}
	}
	return Compile(data)
}

func decodeDefault() (*Data, error) {
	var data Data
	if err := json.Unmarshal(defaultPatterns, &data); err != nil {
		return nil, fmt.Errorf("decode default patterns: %w", err)
	}
	return &data, nil
}

func Compile(data *Data) (*Set, error) {
	set := &Set{
		Version:           data.Version,
		Emergency:         NewSubstringFamily("emergency", data.Emergency),
		Price:             NewKeywordFamily("price", data.Price),
		Product:           NewKeywordFamily("product", data.Product),
		FAQ:               NewKeywordFamily("faq", data.FAQ),
		Web:               NewKeywordFamily("web", data.Web),
		Medical:           NewKeywordFamily("medical", data.Medical),
		Greeting:          NewKeywordFamily("greeting", data.Greeting),
		TrivialGreeting:   NewKeywordFamily("trivial_greeting", data.TrivialGreeting),
		AskMarkers:        NewKeywordFamily("ask_markers", data.AskMarkers),
		QuestionMarkers:   NewKeywordFamily("question_markers", data.QuestionMarkers),
		DoctorAck:         NewKeywordFamily("doctor_ack", data.DoctorAck),
		DisclaimerMarkers: NewKeywordFamily("disclaimer_markers", data.DisclaimerMarkers),
		CurrencyMarkers:   NewKeywordFamily("currency_markers", data.CurrencyMarkers),
		NameStopwords:     make(map[string]struct{}, len(data.NameStopwords)),
		IntentPhrases:     data.IntentPhrases,
		messages:          data.Messages,
	}
	for _, w := range data.NameStopwords {
		set.NameStopwords[Normalize(w)] = struct{}{}
	}
	regexFamilies := []struct {
		dst      **RegexFamily
		name     string
		patterns []string
	}{
		{&set.PromptInjection, "prompt_injection", data.PromptInjection},
		{&set.Inappropriate, "inappropriate_content", data.Inappropriate},
		{&set.Illegal, "illegal_content", data.Illegal},
		{&set.HarmfulOutput, "harmful_output", data.HarmfulOutput},
		{&set.NameIntroduction, "name_introduction", data.NameIntroduction},
		{&set.PriceDocs, "doc_filters.price", data.DocFilters.Price},
		{&set.ProductDocs, "doc_filters.product", data.DocFilters.Product},
		{&set.MedicalDocs, "doc_filters.medical", data.DocFilters.Medical},
		{&set.FAQDocs, "doc_filters.faq", data.DocFilters.FAQ},
		{&set.PriceExtract, "price_extract", data.PriceExtract},
		{&set.SymptomExtract, "symptom_extract", data.SymptomExtract},
	}
	for _, item := range regexFamilies {
		family, err := NewRegexFamily(item.name, item.patterns)
		if err != nil {
			return nil, err
		}
		*item.dst = family
	}
	if data.ProductName != "" {
		re, err := regexp.Compile(data.ProductName)
		if err != nil {
			return nil, fmt.Errorf("compile product_name: %w", err)
		}
		set.ProductName = re
	}
	if _, ok := set.messages[LangVI]; !ok {
		return nil, fmt.Errorf("patterns: messages.%s is required", LangVI)
	}
	return set, nil
}

// Messages returns the strings for lang, falling back to Vietnamese.
func (s *Set) Messages(lang string) Messages {
	if m, ok := s.messages[lang]; ok {
		return m
	}
	return s.messages[LangVI]
}
