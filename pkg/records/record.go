package records

import "time"

// Status of a ledger row
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// TimestampLayout is how LastUpdated is written to the ledger
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the exact ledger header row
var Header = []string{
	"url", "status", "title", "author", "published_date",
	"folder_name", "timestamp", "failure_reason", "source",
}

// Record is one ledger row, keyed by URL
type Record struct {
	URL           string
	Status        Status
	Title         string
	Author        string
	PublishedDate string
	FolderName    string
	LastUpdated   string
	FailureReason string
	Source        string
}

// Succeeded reports whether the URL has been archived
func (r Record) Succeeded() bool {
	return r.Status == StatusSuccess
}

// UpdatedAt parses LastUpdated. Rows written by other tools may carry
// RFC 3339 timestamps, so both layouts are accepted.
func (r Record) UpdatedAt() (time.Time, bool) {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, r.LastUpdated, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Update is a partial write. Nil fields are absent and never clobber an
// existing value.
type Update struct {
	URL           string
	Status        Status
	Title         *string
	Author        *string
	PublishedDate *string
	FolderName    *string
	FailureReason *string
	Source        *string
}

// String returns a pointer to s for building an Update
func String(s string) *string {
	return &s
}

func (r Record) fields() []string {
	return []string{
		r.URL, string(r.Status), r.Title, r.Author, r.PublishedDate,
		r.FolderName, r.LastUpdated, r.FailureReason, r.Source,
	}
}

func recordFromFields(f []string) Record {
	return Record{
		URL:           f[0],
		Status:        Status(f[1]),
		Title:         f[2],
		Author:        f[3],
		PublishedDate: f[4],
		FolderName:    f[5],
		LastUpdated:   f[6],
		FailureReason: f[7],
		Source:        f[8],
	}
}

// merge applies u to existing following the success-is-sticky rule.
// stamp is the LastUpdated value for this write.
func merge(existing *Record, u Update, stamp string) Record {
	if existing == nil {
		r := Record{URL: u.URL, Status: u.Status, LastUpdated: stamp}
		apply(&r, u)
		return r
	}

	r := *existing
	if r.Status == StatusSuccess && u.Status != StatusSuccess {
		// Sticky success: only fill what is missing
		if r.LastUpdated == "" {
			r.LastUpdated = stamp
		}
		if r.FailureReason == "" && u.FailureReason != nil {
			r.FailureReason = *u.FailureReason
		}
		if r.Source == "" && u.Source != nil {
			r.Source = *u.Source
		}
		return r
	}

	r.Status = u.Status
	r.LastUpdated = stamp
	apply(&r, u)
	return r
}

func apply(r *Record, u Update) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&r.Title, u.Title)
	set(&r.Author, u.Author)
	set(&r.PublishedDate, u.PublishedDate)
	set(&r.FolderName, u.FolderName)
	set(&r.FailureReason, u.FailureReason)
	set(&r.Source, u.Source)
}
