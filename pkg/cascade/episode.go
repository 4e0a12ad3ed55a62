package cascade

import (
	"context"
	"fmt"
	"strings"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

type extractedParticipant struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Roles   []string `json:"roles"`
	Aliases []string `json:"aliases"`
}

type participantResponse struct {
	Participants []extractedParticipant `json:"participants"`
}

type extractedTransaction struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Type        string   `json:"type"`
	Amount      *float64 `json:"amount"`
	Currency    string   `json:"currency"`
	Timestamp   string   `json:"timestamp"`
	Description string   `json:"description"`
}

type transactionResponse struct {
	Transactions []extractedTransaction `json:"transactions"`
}

type episodeAccount struct {
	Description string    `json:"description"`
	TimeRange   TimeRange `json:"time_range"`
}

// EpisodeEnricher fills one skeleton episode with participants, transactions
// and a final description. Participants go through the shared pool so the
// same actor resolves to one identifier across episodes.
type EpisodeEnricher struct {
	client oracle.Client
	pool   *Pool
}

func NewEpisodeEnricher(client oracle.Client, pool *Pool) *EpisodeEnricher {
	return &EpisodeEnricher{client: client, pool: pool}
}

// Enrich mutates the episode in place. Returned violations describe dropped
// transactions; a non-nil error means the episode could not be enriched at
// all and should be kept as the skeleton produced it.
func (e *EpisodeEnricher) Enrich(ctx context.Context, episode *Episode, evidence []Evidence) ([]Violation, error) {
	listing := formatEvidence(evidence)

	var extracted participantResponse
	if err := e.client.CompleteStructured(
		ctx,
		"episode_participants",
		"Participants taking part in one episode",
		fmt.Sprintf(oracle.ParticipantPrompt, episode.Label, episode.Description, listing),
		&extracted,
	); err != nil {
		return nil, fmt.Errorf("extract participants: %w", err)
	}

	// Names and aliases the model just produced, mapped to pool identifiers,
	// so transaction endpoints can be resolved without another model call.
	byName := make(map[string]string)
	for _, p := range extracted.Participants {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		id, err := e.pool.Resolve(ctx, p.Name, p.Type, p.Roles, p.Aliases, episode.Evidence)
		if err != nil {
			return nil, fmt.Errorf("resolve participant %q: %w", p.Name, err)
		}
		if !containsID(episode.ParticipantIDs, id) {
			episode.ParticipantIDs = append(episode.ParticipantIDs, id)
		}
		byName[foldName(p.Name)] = id
		for _, alias := range p.Aliases {
			if _, taken := byName[foldName(alias)]; !taken {
				byName[foldName(alias)] = id
			}
		}
	}

	violations, err := e.extractTransactions(ctx, episode, extracted.Participants, byName, listing)
	if err != nil {
		return nil, err
	}

	if err := e.finalize(ctx, episode, listing); err != nil {
		return nil, err
	}
	return violations, nil
}

func (e *EpisodeEnricher) extractTransactions(ctx context.Context, episode *Episode, participants []extractedParticipant, byName map[string]string, listing string) ([]Violation, error) {
	if len(participants) == 0 {
		return nil, nil
	}

	var names strings.Builder
	for _, p := range participants {
		fmt.Fprintf(&names, "- %s (%s)\n", p.Name, p.Type)
	}

	var extracted transactionResponse
	if err := e.client.CompleteStructured(
		ctx,
		"episode_transactions",
		"Value transfers occurring in one episode",
		fmt.Sprintf(oracle.TransactionPrompt, episode.Label, episode.Description, names.String(), listing),
		&extracted,
	); err != nil {
		return nil, fmt.Errorf("extract transactions: %w", err)
	}

	var violations []Violation
	for _, tx := range extracted.Transactions {
		sourceID, sourceOK := byName[foldName(tx.Source)]
		targetID, targetOK := byName[foldName(tx.Target)]
		if !sourceOK || !targetOK {
			logger.Warn("dropping transaction with unknown participant",
				"episode", episode.ID, "source", tx.Source, "target", tx.Target)
			violations = append(violations, Violation{
				Kind: ViolationUnknownParticipant,
				Node: episode.ID,
				Detail: fmt.Sprintf("transaction %q -> %q names a participant outside the episode and was dropped",
					tx.Source, tx.Target),
			})
			continue
		}
		timestamp := strings.TrimSpace(tx.Timestamp)
		if timestamp == "" {
			timestamp = UnknownTime
		}
		episode.Transactions = append(episode.Transactions, Transaction{
			SourceID:    sourceID,
			TargetID:    targetID,
			Type:        tx.Type,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			Timestamp:   timestamp,
			Description: tx.Description,
			Evidence:    episode.Evidence,
		})
	}
	return violations, nil
}

func (e *EpisodeEnricher) finalize(ctx context.Context, episode *Episode, listing string) error {
	var participants strings.Builder
	for _, id := range episode.ParticipantIDs {
		if p, ok := e.pool.participantByID(id); ok {
			fmt.Fprintf(&participants, "- %s (%s): %s\n", p.Name, p.Type, strings.Join(p.Roles, ", "))
		}
	}

	var transactions strings.Builder
	for _, tx := range episode.Transactions {
		fmt.Fprintf(&transactions, "- %s: %s -> %s (%s)\n", tx.Type, tx.SourceID, tx.TargetID, tx.Description)
	}
	if transactions.Len() == 0 {
		transactions.WriteString("(none)\n")
	}

	var account episodeAccount
	if err := e.client.CompleteStructured(
		ctx,
		"episode_account",
		"Final description and time range of one episode",
		fmt.Sprintf(oracle.EpisodePrompt, episode.Label, episode.Description,
			participants.String(), transactions.String(), listing),
		&account,
	); err != nil {
		return fmt.Errorf("finalize episode: %w", err)
	}

	if strings.TrimSpace(account.Description) != "" {
		episode.Description = account.Description
	}
	refined := normalizeRange(account.TimeRange)
	if refined.Start != UnknownTime || refined.End != UnknownTime {
		episode.Span = refined
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func foldName(name string) string {
	return strings.ToUpper(util.FoldSpace(name))
}
