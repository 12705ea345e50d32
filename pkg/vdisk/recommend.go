// file: pkg/vdisk/recommend.go

package vdisk

const (
	SuggestDeleteJunk = "delete (junk)"
	SuggestCompress   = "compress"
	SuggestDuplicate  = "duplicate - consider delete"

	// DefaultCompressThresholdKB is the size above which an uncompressed file
	// is suggested for compression
	DefaultCompressThresholdKB = 200
)

// Recommendation is a housekeeping suggestion for one file
type Recommendation struct {
	FileID     FileID  `json:"file_id"`
	Filename   string  `json:"filename"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

// recommend produces at most one suggestion per file, first match wins:
// junk, then large and uncompressed, then identical content.
func recommend(files []*File, junk JunkSet, compressThresholdKB int) []Recommendation {
	bySum := make(map[string]int)
	for _, f := range files {
		if f.SHA256 != "" {
			bySum[f.SHA256]++
		}
	}

	recs := []Recommendation{}
	for _, f := range files {
		rec := Recommendation{FileID: f.ID, Filename: f.Filename}
		switch {
		case junk.IsJunk(f.Filename):
			rec.Suggestion, rec.Confidence = SuggestDeleteJunk, 0.95
		case !f.IsCompressed && f.SizeKB > compressThresholdKB:
			rec.Suggestion, rec.Confidence = SuggestCompress, 0.85
		case f.SHA256 != "" && bySum[f.SHA256] > 1:
			rec.Suggestion, rec.Confidence = SuggestDuplicate, 0.90
		default:
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}
