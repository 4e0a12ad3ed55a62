package cascade

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

const maxDedupeRounds = 3

type dedupeGroup struct {
	CanonicalName string   `json:"canonicalName"`
	Participants  []string `json:"participants"`
}

type dedupeResponse struct {
	Duplicates []dedupeGroup `json:"duplicates"`
}

// Assembler performs the final pass over an enriched cascade: one more
// participant deduplication across all episodes, transaction numbering,
// structural validation and freezing.
type Assembler struct {
	client oracle.Client
}

func NewAssembler(client oracle.Client) *Assembler {
	return &Assembler{client: client}
}

// Assemble mutates the cascade into its frozen form. A non-nil error is
// returned only when the context ends; every other failure is absorbed as a
// violation on a partial cascade.
func (a *Assembler) Assemble(ctx context.Context, c *Cascade) error {
	if err := a.dedupeParticipants(ctx, c); err != nil {
		return err
	}

	numberTransactions(c)
	c.Violations = append(c.Violations, c.Validate()...)
	c.Freeze()
	return nil
}

func (a *Assembler) dedupeParticipants(ctx context.Context, c *Cascade) error {
	for round := 0; round < maxDedupeRounds; round++ {
		if len(c.Participants) < 2 {
			return nil
		}

		var response dedupeResponse
		err := a.client.CompleteStructured(
			ctx,
			"participant_duplicates",
			"Groups of participant names referring to the same entity",
			fmt.Sprintf(oracle.DedupePrompt, formatParticipants(c.Participants)),
			&response,
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("participant deduplication failed, keeping pool as resolved", "err", err)
			c.Partial = true
			c.Violations = append(c.Violations, Violation{
				Kind:   ViolationDedupeFailed,
				Detail: err.Error(),
			})
			return nil
		}

		merged := 0
		for _, group := range response.Duplicates {
			merged += a.applyGroup(c, group)
		}
		if merged == 0 {
			return nil
		}
		logger.Debug("dedupe round merged participants", "round", round+1, "merged", merged)
	}
	return nil
}

// applyGroup collapses one duplicate group onto the member with the lowest
// participant number and returns how many participants were absorbed.
func (a *Assembler) applyGroup(c *Cascade, group dedupeGroup) int {
	var members []*Participant
	seen := make(map[string]bool)
	for _, name := range group.Participants {
		p := findParticipant(c.Participants, name)
		if p == nil || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		members = append(members, p)
	}
	if len(members) < 2 {
		return 0
	}

	canonical := members[0]
	for _, m := range members[1:] {
		if participantNumber(m.ID) < participantNumber(canonical.ID) {
			canonical = m
		}
	}

	remap := make(map[string]string)
	for _, m := range members {
		if m.ID == canonical.ID {
			continue
		}
		remap[m.ID] = canonical.ID
		canonical.Aliases = dedupeStrings(canonical.Aliases, append([]string{m.Name}, m.Aliases...))
		canonical.Roles = dedupeStrings(canonical.Roles, m.Roles)
		canonical.Evidence = dedupeRefs(canonical.Evidence, m.Evidence)
	}
	if name := strings.TrimSpace(group.CanonicalName); name != "" && name != canonical.Name {
		canonical.Aliases = dedupeStrings(canonical.Aliases, []string{canonical.Name})
		canonical.Name = name
	}
	canonical.Aliases = withoutName(canonical.Aliases, canonical.Name)

	kept := c.Participants[:0]
	for i := range c.Participants {
		if _, gone := remap[c.Participants[i].ID]; !gone {
			kept = append(kept, c.Participants[i])
		}
	}
	c.Participants = kept

	remapReferences(c, remap)
	return len(remap)
}

func remapReferences(c *Cascade, remap map[string]string) {
	resolve := func(id string) string {
		if canonical, ok := remap[id]; ok {
			return canonical
		}
		return id
	}
	for si := range c.Stages {
		for ei := range c.Stages[si].Episodes {
			ep := &c.Stages[si].Episodes[ei]
			ids := ep.ParticipantIDs[:0]
			present := make(map[string]bool)
			for _, id := range ep.ParticipantIDs {
				id = resolve(id)
				if !present[id] {
					present[id] = true
					ids = append(ids, id)
				}
			}
			ep.ParticipantIDs = ids
			for ti := range ep.Transactions {
				ep.Transactions[ti].SourceID = resolve(ep.Transactions[ti].SourceID)
				ep.Transactions[ti].TargetID = resolve(ep.Transactions[ti].TargetID)
			}
		}
	}
}

func numberTransactions(c *Cascade) {
	n := 0
	for si := range c.Stages {
		for ei := range c.Stages[si].Episodes {
			for ti := range c.Stages[si].Episodes[ei].Transactions {
				n++
				c.Stages[si].Episodes[ei].Transactions[ti].ID = util.TransactionID(n)
			}
		}
	}
}

func formatParticipants(participants []Participant) string {
	var b strings.Builder
	for _, p := range participants {
		fmt.Fprintf(&b, "- %s (%s)", p.Name, p.Type)
		if len(p.Aliases) > 0 {
			fmt.Fprintf(&b, ", also known as: %s", strings.Join(p.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func findParticipant(participants []Participant, name string) *Participant {
	folded := foldName(name)
	for i := range participants {
		if foldName(participants[i].Name) == folded {
			return &participants[i]
		}
		for _, alias := range participants[i].Aliases {
			if foldName(alias) == folded {
				return &participants[i]
			}
		}
	}
	return nil
}

func participantNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "P_"))
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
