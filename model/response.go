package model

import (
	"fmt"
	"time"
)

const (
	CategoryRecommended = "Recommended"
	CategoryOthers      = "Others"
)

// ModelInfo is one selectable model. Category is empty for the local
// provider and Recommended or Others for cloud providers.
// Details is a short size summary for installed local models.
type ModelInfo struct {
	ID       string
	Name     string
	Category string
	Details  string
}

// ModelList is the result of a model listing. Notice is a short user-facing
// message, set when the list is a fallback or was freshly synced.
type ModelList struct {
	Models []ModelInfo
	Notice string
}

func (l ModelList) Contains(id string) bool {
	for _, m := range l.Models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// GenerateOptions carries the sampling parameters of one request.
type GenerateOptions struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
}

// GenerateResponse is the final summary of one successful generation.
//
// TotalDuration is the server-reported generation time for the local
// provider and the client-side wall clock for cloud providers, so the two
// are not directly comparable.
type GenerateResponse struct {
	Response        string
	Done            bool
	Model           string
	TotalDuration   time.Duration
	PromptEvalCount int
	EvalCount       int
}

// Stats formats the completion summary shown under a response panel,
// e.g. "42 tkn | 1.25s". The token figure counts prompt and completion.
func (r GenerateResponse) Stats() string {
	return fmt.Sprintf("%d tkn | %.2fs", r.PromptEvalCount+r.EvalCount, r.TotalDuration.Seconds())
}
