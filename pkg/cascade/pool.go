package cascade

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

type sameEntityResponse struct {
	Same   bool   `json:"same"`
	Reason string `json:"reason"`
}

// Pool is the participant registry for one cascade under construction. It
// admits names in two tiers: an exact normalized-key match merges
// immediately, a near match is confirmed by the model before merging.
// Resolution is serialized, so participant IDs are assigned in admission
// order.
type Pool struct {
	mu     sync.Mutex
	client oracle.Client

	participants []*Participant
	byKey        map[string]*Participant
	nextID       int
}

func NewPool(client oracle.Client) *Pool {
	return &Pool{
		client: client,
		byKey:  make(map[string]*Participant),
	}
}

// normalizeKey canonicalizes a name for exact matching: whitespace folded,
// uppercased, joined with the participant type.
func normalizeKey(name, ptype string) string {
	return strings.ToUpper(util.FoldSpace(name)) + "|" + strings.ToUpper(strings.TrimSpace(ptype))
}

// Resolve admits a named participant into the pool, merging with an existing
// entry when it refers to the same real-world party. It returns the
// resolved participant ID.
func (p *Pool) Resolve(ctx context.Context, name, ptype string, roles, aliases []string, evidence []ParagraphRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name = util.FoldSpace(name)
	if name == "" {
		return "", fmt.Errorf("participant name must not be empty")
	}

	// Tier one: exact key match on the name or any known alias.
	if existing, ok := p.byKey[normalizeKey(name, ptype)]; ok {
		p.merge(existing, name, roles, aliases, evidence)
		return existing.ID, nil
	}

	// Tier two: near matches confirmed by the model.
	for _, existing := range p.participants {
		if !strings.EqualFold(existing.Type, ptype) {
			continue
		}
		if !nearMatch(existing, name) {
			continue
		}

		same, err := p.sameEntity(ctx, existing, name, ptype)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			// Treat an unanswerable check as distinct; global dedupe
			// gets another chance at assembly time.
			logger.Warn("same-entity check failed, keeping participants distinct",
				"name", name, "candidate", existing.Name, "err", err)
			continue
		}
		if same {
			p.merge(existing, name, roles, aliases, evidence)
			return existing.ID, nil
		}
	}

	p.nextID++
	participant := &Participant{
		ID:       util.ParticipantID(p.nextID),
		Name:     name,
		Type:     strings.ToUpper(strings.TrimSpace(ptype)),
		Roles:    dedupeStrings(nil, roles),
		Aliases:  dedupeStrings(nil, withoutName(aliases, name)),
		Evidence: dedupeRefs(nil, evidence),
	}
	p.participants = append(p.participants, participant)
	p.byKey[normalizeKey(name, ptype)] = participant
	for _, alias := range participant.Aliases {
		p.byKey[normalizeKey(alias, ptype)] = participant
	}
	return participant.ID, nil
}

// Participants returns the pool contents in admission order.
func (p *Pool) Participants() []Participant {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Participant, len(p.participants))
	for i, participant := range p.participants {
		out[i] = *participant
	}
	return out
}

func (p *Pool) participantByID(id string) (Participant, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, participant := range p.participants {
		if participant.ID == id {
			return *participant, true
		}
	}
	return Participant{}, false
}

func (p *Pool) sameEntity(ctx context.Context, existing *Participant, name, ptype string) (bool, error) {
	var response sameEntityResponse
	err := p.client.CompleteStructured(
		ctx,
		"same_entity",
		"Whether two names refer to the same participant",
		fmt.Sprintf(oracle.SameEntityPrompt, existing.Name, existing.Type, name, strings.ToUpper(ptype)),
		&response,
	)
	if err != nil {
		return false, err
	}
	return response.Same, nil
}

func (p *Pool) merge(existing *Participant, name string, roles, aliases []string, evidence []ParagraphRef) {
	if !strings.EqualFold(existing.Name, name) {
		existing.Aliases = dedupeStrings(existing.Aliases, []string{name})
	}
	existing.Roles = dedupeStrings(existing.Roles, roles)
	existing.Aliases = dedupeStrings(existing.Aliases, withoutName(aliases, existing.Name))
	existing.Evidence = dedupeRefs(existing.Evidence, evidence)

	// Keep the exact-match tier current: every alias picked up here must
	// resolve without another model round trip.
	p.byKey[normalizeKey(existing.Name, existing.Type)] = existing
	for _, alias := range existing.Aliases {
		p.byKey[normalizeKey(alias, existing.Type)] = existing
	}
}

// nearMatch reports whether name is plausibly the same party as existing:
// either one name contains the other, or they share a token of at least
// three characters. Cheap screen before the model is asked.
func nearMatch(existing *Participant, name string) bool {
	candidates := append([]string{existing.Name}, existing.Aliases...)
	upper := strings.ToUpper(name)
	for _, candidate := range candidates {
		candidateUpper := strings.ToUpper(candidate)
		if strings.Contains(candidateUpper, upper) || strings.Contains(upper, candidateUpper) {
			return true
		}
		if sharesToken(candidateUpper, upper) {
			return true
		}
	}
	return false
}

func sharesToken(a, b string) bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(a) {
		if len(tok) >= 3 {
			tokens[tok] = true
		}
	}
	for _, tok := range strings.Fields(b) {
		if len(tok) >= 3 && tokens[tok] {
			return true
		}
	}
	return false
}

func withoutName(aliases []string, name string) []string {
	var out []string
	for _, alias := range aliases {
		if !strings.EqualFold(util.FoldSpace(alias), util.FoldSpace(name)) {
			out = append(out, alias)
		}
	}
	return out
}

func dedupeStrings(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, s := range existing {
		seen[strings.ToUpper(util.FoldSpace(s))] = true
	}
	for _, s := range incoming {
		folded := util.FoldSpace(s)
		if folded == "" {
			continue
		}
		key := strings.ToUpper(folded)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, folded)
	}
	return out
}

func dedupeRefs(existing, incoming []ParagraphRef) []ParagraphRef {
	seen := make(map[ParagraphRef]bool, len(existing))
	out := existing
	for _, ref := range existing {
		seen[ref] = true
	}
	for _, ref := range incoming {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}
