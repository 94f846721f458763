// Package classify turns a raw probe response into an outcome. The rules
// are plain data so they can be tuned from configuration and tested
// without any transport.
package classify

import (
	"net/http"
	"strings"

	"github.com/hostprowl/prowl/internal/model"
)

type Rules struct {
	MinContentLength int
	ParkedPhrases    []string
}

// Classify is a one-shot judgement on a single response:
//   - a transport failure is OutcomeError
//   - a non-200 status is OutcomeEmpty
//   - a body shorter than MinContentLength, or containing any parked
//     phrase (case-insensitive substring), is OutcomeParked
//   - everything else is OutcomeLive
//
// No retries, no redirect policy beyond what the transport already did.
func (r Rules) Classify(status int, body string, probeErr error) model.Outcome {
	if probeErr != nil {
		return model.OutcomeError
	}
	if status != http.StatusOK {
		return model.OutcomeEmpty
	}
	if len(body) < r.MinContentLength {
		return model.OutcomeParked
	}
	lower := strings.ToLower(body)
	for _, phrase := range r.ParkedPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return model.OutcomeParked
		}
	}
	return model.OutcomeLive
}
