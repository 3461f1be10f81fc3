package client

import "time"

// StoredFile describes an accepted upload.
type StoredFile struct {
	Name      string
	Hash      string
	Encrypted bool
}

// Diagnosis is the outcome of one analysis.
type Diagnosis struct {
	Label         string
	Confidence    float64
	Probabilities []float64
	Timestamp     time.Time
	ImageName     string
	HistoryIndex  int
}

// HistoryItem is one row of the session's analysis history.
type HistoryItem struct {
	Timestamp  time.Time
	ImageName  string
	Diagnosis  string
	Confidence float64
}

// Report is a generated PDF and, when archived, where it went.
type Report struct {
	PDF []byte
	Key string
	URL string
}
