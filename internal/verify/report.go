package verify

import "time"

// Outcome classifies a single baseline/current pair.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeErrored = "errored"
	OutcomeSkipped = "skipped"
)

type Result struct {
	// Name is the `<component>-<theme>` identity shared by the
	// baseline, the current capture and the diff artifact.
	Name string `json:"name"`

	BaselineKey string `json:"baselineKey"`
	CurrentKey  string `json:"currentKey,omitempty"`
	DiffURL     string `json:"diffURL,omitempty"`

	DiffPercentage      float64 `json:"diffPercentage"`
	DifferentPixelCount int     `json:"differentPixelCount"`
	TotalPixelCount     int     `json:"totalPixelCount"`

	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`

	// FailThreshold is the diff-percentage ceiling the run was gated
	// on; recorded so a report is interpretable on its own.
	FailThreshold    float64 `json:"failThreshold"`
	ChannelTolerance int     `json:"channelTolerance"`

	Results []Result `json:"results"`

	PassedCount  int `json:"passedCount"`
	FailedCount  int `json:"failedCount"`
	ErroredCount int `json:"erroredCount"`
	SkippedCount int `json:"skippedCount"`
}

// Failed reports whether the run as a whole should exit non-zero: any
// comparison over the threshold or any undecodable capture fails the
// run, while skipped pairs do not.
func (r *Report) Failed() bool {
	return r.FailedCount > 0 || r.ErroredCount > 0
}
