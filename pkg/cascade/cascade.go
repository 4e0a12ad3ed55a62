package cascade

import (
	"time"
)

// UnknownTime is the sentinel for time bounds the evidence does not state.
// It survives serialization unchanged so partial knowledge is never faked
// into a concrete date.
const UnknownTime = "unknown"

// TimeRange bounds an event, stage, episode, or transaction in time. Start
// and End keep the raw form the evidence supports ("2017", "2017-03",
// "2017-03-15", RFC 3339, or "unknown"), so round trips are lossless.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseTime parses a raw time bound at whatever precision it carries.
// It reports false for UnknownTime, empty strings, and unparseable values.
func ParseTime(raw string) (time.Time, bool) {
	if raw == "" || raw == UnknownTime {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StartTime returns the parsed lower bound, if it has one.
func (r TimeRange) StartTime() (time.Time, bool) {
	return ParseTime(r.Start)
}

// EndTime returns the parsed upper bound, if it has one.
func (r TimeRange) EndTime() (time.Time, bool) {
	return ParseTime(r.End)
}

// ParagraphRef points at one evidence paragraph in a source document.
type ParagraphRef struct {
	DocumentID string `json:"document_id"`
	Paragraph  int    `json:"paragraph"`
}

// Participant is a person, organization, account, or instrument taking part
// in the event. IDs take the form "P_<n>" in admission order.
type Participant struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Roles    []string       `json:"roles,omitempty"`
	Aliases  []string       `json:"aliases,omitempty"`
	Evidence []ParagraphRef `json:"evidence,omitempty"`
}

// Transaction is a movement of value between two participants.
// Amount is nil when the evidence states no figure.
type Transaction struct {
	ID          string         `json:"id"`
	SourceID    string         `json:"source_id"`
	TargetID    string         `json:"target_id"`
	Type        string         `json:"type"`
	Amount      *float64       `json:"amount,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Description string         `json:"description,omitempty"`
	Evidence    []ParagraphRef `json:"evidence,omitempty"`
}

// Episode is one concrete occurrence inside a stage. IDs take the form
// "E<n>" in narrative order across the whole cascade.
type Episode struct {
	ID             string         `json:"id"`
	Label          string         `json:"label"`
	Description    string         `json:"description,omitempty"`
	Span           TimeRange      `json:"span"`
	ParticipantIDs []string       `json:"participant_ids,omitempty"`
	Transactions   []Transaction  `json:"transactions,omitempty"`
	Evidence       []ParagraphRef `json:"evidence,omitempty"`
}

// Stage is a major phase of the event. Ordinals are contiguous from zero in
// narrative order; IDs take the form "S<n>" with n = Ordinal + 1.
type Stage struct {
	ID       string    `json:"id"`
	Ordinal  int       `json:"ordinal"`
	Label    string    `json:"label"`
	Span     TimeRange `json:"span"`
	Episodes []Episode `json:"episodes,omitempty"`
}

// Violation kinds recorded during building and validation.
const (
	ViolationMatchingFailed     = "matching_failed"
	ViolationNoEvidence         = "no_evidence"
	ViolationSkeletonFailed     = "skeleton_failed"
	ViolationMissingProvenance  = "missing_provenance"
	ViolationEnrichmentFailed   = "enrichment_failed"
	ViolationUnknownParticipant = "unknown_participant"
	ViolationDedupeFailed       = "dedupe_failed"
	ViolationStageOrder         = "stage_order"
	ViolationEpisodeOutsideSpan = "episode_outside_stage_span"
	ViolationDanglingReference  = "dangling_reference"
)

// Violation records a broken invariant or a partial failure, attached to the
// cascade instead of aborting the build.
type Violation struct {
	Kind   string `json:"kind"`
	Node   string `json:"node,omitempty"`
	Detail string `json:"detail"`
}

// Cascade is the fully reconstructed event: its stages, episodes,
// transactions, and the deduplicated participant registry they reference.
type Cascade struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	EventType    string        `json:"event_type"`
	Query        string        `json:"query"`
	Span         TimeRange     `json:"span"`
	Stages       []Stage       `json:"stages"`
	Participants []Participant `json:"participants"`
	Violations   []Violation   `json:"violations,omitempty"`
	Partial      bool          `json:"partial"`
	Frozen       bool          `json:"frozen"`
}

// ParticipantByID returns the participant with the given ID, or false.
func (c *Cascade) ParticipantByID(id string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].ID == id {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// Freeze marks the cascade immutable. Builders call this exactly once, after
// validation; consumers must treat a frozen cascade as read-only.
func (c *Cascade) Freeze() {
	c.Frozen = true
}

// Validate checks the structural invariants and returns a violation for each
// breach. It never mutates the cascade.
func (c *Cascade) Validate() []Violation {
	var violations []Violation

	ids := make(map[string]bool, len(c.Participants))
	for _, p := range c.Participants {
		ids[p.ID] = true
	}

	for i, stage := range c.Stages {
		if stage.Ordinal != i {
			violations = append(violations, Violation{
				Kind:   ViolationStageOrder,
				Node:   stage.ID,
				Detail: "stage ordinals must be contiguous from zero in narrative order",
			})
		}

		stageStart, hasStageStart := stage.Span.StartTime()
		stageEnd, hasStageEnd := stage.Span.EndTime()

		for _, ep := range stage.Episodes {
			// Overlapping estimates are tolerated; only ranges disjoint
			// from the stage span breach the containment invariant.
			if epEnd, ok := ep.Span.EndTime(); ok && hasStageStart && epEnd.Before(stageStart) {
				violations = append(violations, Violation{
					Kind:   ViolationEpisodeOutsideSpan,
					Node:   ep.ID,
					Detail: "episode ends before its stage begins",
				})
			}
			if epStart, ok := ep.Span.StartTime(); ok && hasStageEnd && epStart.After(stageEnd) {
				violations = append(violations, Violation{
					Kind:   ViolationEpisodeOutsideSpan,
					Node:   ep.ID,
					Detail: "episode starts after its stage ends",
				})
			}

			for _, pid := range ep.ParticipantIDs {
				if !ids[pid] {
					violations = append(violations, Violation{
						Kind:   ViolationDanglingReference,
						Node:   ep.ID,
						Detail: "episode references unknown participant " + pid,
					})
				}
			}

			for _, tx := range ep.Transactions {
				if !ids[tx.SourceID] {
					violations = append(violations, Violation{
						Kind:   ViolationDanglingReference,
						Node:   tx.ID,
						Detail: "transaction source references unknown participant " + tx.SourceID,
					})
				}
				if !ids[tx.TargetID] {
					violations = append(violations, Violation{
						Kind:   ViolationDanglingReference,
						Node:   tx.ID,
						Detail: "transaction target references unknown participant " + tx.TargetID,
					})
				}
			}
		}
	}

	return violations
}
