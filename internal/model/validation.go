package model

type RejectReason string

const (
	ReasonEmptyInput           RejectReason = "empty_input"
	ReasonPromptInjection      RejectReason = "prompt_injection"
	ReasonInappropriateContent RejectReason = "inappropriate_content"
	ReasonIllegalContent       RejectReason = "illegal_content"
	ReasonInputTooLong         RejectReason = "input_too_long"
)

type ValidationResult struct {
	IsValid          bool         `json:"is_valid"`
	Reason           RejectReason `json:"reason,omitempty"`
	IsEmergency      bool         `json:"is_emergency"`
	Response         string       `json:"response,omitempty"`
	OverrideResponse string       `json:"override_response,omitempty"`
	Lang             string       `json:"lang,omitempty"`
}
