// Package models defines the persistent record types tracked by the
// pipeline: a Diff per revision under review, and the Sources a similarity
// report attaches to it once ready.
package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle stage of a Diff. Negative values are in-flight;
// zero is the terminal "awaits review" state. Values are persisted as-is so
// a range scan on status selects work-in-progress rows.
type Status int8

const (
	StatusUnsubmitted Status = -4
	StatusCreated     Status = -3
	StatusUploaded    Status = -2
	StatusPending     Status = -1
	StatusReady       Status = 0
)

func (s Status) String() string {
	switch s {
	case StatusUnsubmitted:
		return "UNSUBMITTED"
	case StatusCreated:
		return "CREATED"
	case StatusUploaded:
		return "UPLOADED"
	case StatusPending:
		return "PENDING"
	case StatusReady:
		return "READY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int8(s))
	}
}

// Diff is one tracked revision moving through submission, upload, report
// generation and source filtering.
type Diff struct {
	ID               int64
	Project          string // e.g. "wikipedia"
	Lang             string // e.g. "en"
	PageNamespace    int
	PageTitle        string // underscore form, no namespace prefix
	RevID            uint64
	RevParentID      uint64 // 0 means page creation
	RevTimestamp     time.Time
	RevUserText      string
	SubmissionID     *string // canonical UUID string; nil iff Status == StatusUnsubmitted
	Status           Status
	StatusTimestamp  *time.Time
	StatusUserText   *string
	Sources          []Source
}

// PageFullTitle renders "Namespace:Title" the way MediaWiki titles display.
// The check-changes stage does not use it: the submission title is built
// from wikiapi.Client.PageTitle.
func (d *Diff) PageFullTitle(namespacePrefix string) string {
	if namespacePrefix == "" {
		return d.PageTitle
	}
	return namespacePrefix + ":" + d.PageTitle
}

// Source is a document the similarity service believes resembles the
// uploaded text.
type Source struct {
	SourceID     int64
	SubmissionID string
	Description  string
	URL          *string
	Percent      float64
}
