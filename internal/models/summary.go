package models

// SummarizeRequest is the body of POST /api/summarize.
type SummarizeRequest struct {
	URL string `json:"url"`
}

// AskRequest is the body of POST /api/ask. Context is usually a summary the
// caller received earlier; the server keeps nothing between calls.
type AskRequest struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// Transcript is the speech-to-text output for one request. Memory only.
type Transcript struct {
	Text string `json:"text"`
}

type Summary struct {
	Text string `json:"summary"`
}

type Answer struct {
	Text string `json:"answer"`
}
