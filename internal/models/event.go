package models

// RevisionCreateEvent is the subset of a MediaWiki "revision-create"
// EventStreams payload the ingester filters on (§4.1).
type RevisionCreateEvent struct {
	Meta struct {
		Domain string `json:"domain"`
		URI    string `json:"uri"`
	} `json:"meta"`
	PageNamespace     int    `json:"page_namespace"`
	PageTitle         string `json:"page_title"`
	RevID             uint64 `json:"rev_id"`
	RevParentID       uint64 `json:"rev_parent_id"`
	RevTimestamp      int64  `json:"rev_timestamp"` // unix seconds
	RevLen            int    `json:"rev_len"`
	RevContentChanged bool   `json:"rev_content_changed"`
	Performer         struct {
		UserText string `json:"user_text"`
		IsBot    bool   `json:"user_is_bot"`
	} `json:"performer"`
}
