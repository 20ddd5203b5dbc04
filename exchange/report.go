package exchange

// Skip reasons reported per row.
const (
	ReasonMalformed       = "malformed"
	ReasonStale           = "stale_reference"
	ReasonUnknownLanguage = "unknown_language"
)

// Report is the outcome of one import. Every data row of the file lands in
// exactly one counter.
type Report struct {
	DocumentID int64 `json:"document_id"`
	Rows       int   `json:"rows"`

	// Applied rows changed a stored value; Unchanged rows matched it already.
	Applied   int `json:"applied"`
	Unchanged int `json:"unchanged"`
	// Blank rows had an empty translatedValue and were left alone.
	Blank int `json:"blank"`
	// Superseded rows were overridden by a later row for the same address
	// and language in the same file.
	Superseded int `json:"superseded"`

	SkippedMalformed       int `json:"skipped_malformed"`
	SkippedStale           int `json:"skipped_stale"`
	SkippedUnknownLanguage int `json:"skipped_unknown_language"`

	Skipped []SkippedRow `json:"skipped,omitempty"`
}

// SkippedRow identifies a rejected row so it can be fixed and re-imported.
type SkippedRow struct {
	Line int `json:"line"`
	RawIdentity
	Reason string `json:"reason"`
	Error  string `json:"error"`
	Err    error  `json:"-"`
}

// SkippedCount is the total number of rejected rows.
func (r *Report) SkippedCount() int {
	return r.SkippedMalformed + r.SkippedStale + r.SkippedUnknownLanguage
}

func (r *Report) skip(rec Record, reason string, err error) {
	switch reason {
	case ReasonMalformed:
		r.SkippedMalformed++
	case ReasonStale:
		r.SkippedStale++
	case ReasonUnknownLanguage:
		r.SkippedUnknownLanguage++
	}
	r.Skipped = append(r.Skipped, SkippedRow{
		Line:        rec.Line,
		RawIdentity: rec.Raw,
		Reason:      reason,
		Error:       err.Error(),
		Err:         err,
	})
}
