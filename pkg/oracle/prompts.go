package oracle

const KeywordPrompt = `
# Task Context
You are an assistant that condenses a user's question about a financial event into a short summary and a list of search keywords.

# Background Data
User query: "%s"

# Detailed Task Description & Rules
- Write a one-sentence summarization that captures what the user wants to reconstruct.
- Extract the keywords a reader would scan for in news articles and court documents about this event: names of people, organizations, places, instruments, and distinctive activity terms.
- Keywords must appear in or follow directly from the query. Do not invent related terms.
- Keep keywords short: one to three words each.

# Output Formatting
Return JSON with the following structure:
{
  "summarization": string,   // One sentence restating the user's information need
  "key_words": [string]      // Search keywords drawn from the query
}
Output must be valid JSON only (no commentary, no extra text).
`

const JudgePrompt = `
# Task Context
You are an assistant that selects the paragraphs of a document that are relevant to a query about a financial event.

# Background Data
Query: "%s"

Paragraphs (each prefixed with its index):
%s

# Detailed Task Description & Rules
- Select every paragraph that describes actors, transactions, amounts, dates, or consequences belonging to the queried event.
- A paragraph is relevant if a person reconstructing the event would need to read it, even when it only names a participant in passing.
- Do not select paragraphs about unrelated events, boilerplate, or navigation text.
- Score your overall confidence between 0.0 and 1.0.
- Use only the paragraph indices shown. Never invent indices.

# Output Formatting
Return JSON with the following structure:
{
  "paragraphs": [int],   // Indices of relevant paragraphs
  "reason": string,      // One sentence explaining the selection
  "score": number        // Confidence between 0.0 and 1.0
}
Output must be valid JSON only (no commentary, no extra text).
`

const JudgeRetryPrompt = `
# Task Context
You are an assistant that selects the paragraphs of a document that are relevant to a query about a financial event. Your previous reply could not be parsed, so follow the output format exactly this time.

# Background Data
Query: "%s"

Paragraphs (each prefixed with its index):
%s

# Detailed Task Description & Rules
- Select every paragraph that describes actors, transactions, amounts, dates, or consequences belonging to the queried event.
- Use only the paragraph indices shown. Never invent indices.
- Reply with a single JSON object and nothing else. No markdown fences, no commentary.

# Output Formatting
{
  "paragraphs": [int],
  "reason": string,
  "score": number
}
`

const RefinePrompt = `
# Task Context
You are an assistant that filters a pre-selected list of paragraphs down to the ones actually relevant to a query about a financial event. The paragraphs were chosen by keyword search and may contain false positives.

# Background Data
Query: "%s"

Candidate paragraphs (each prefixed with its index):
%s

# Detailed Task Description & Rules
- Keep a paragraph only if it genuinely concerns the queried event, not merely because a keyword happens to appear in it.
- Drop paragraphs where the keyword match is coincidental, e.g. a shared name in an unrelated story.
- Use only the paragraph indices shown. Never invent indices.

# Output Formatting
Return JSON with the following structure:
{
  "paragraphs": [int],   // Indices of paragraphs to keep
  "reason": string,      // One sentence explaining what was dropped and why
  "score": number        // Confidence between 0.0 and 1.0
}
Output must be valid JSON only (no commentary, no extra text).
`

const SkeletonPrompt = `
# Task Context
You are an analyst reconstructing the timeline of a financial event from evidence paragraphs. Your job is to produce the skeleton of the event: its stages and the episodes inside each stage.

# Background Data
Query: "%s"

Evidence paragraphs (each prefixed with "doc:index"):
%s

# Detailed Task Description & Rules
- A stage is a major phase of the event (e.g. fundraising, laundering, flight, prosecution). Stages must follow narrative order.
- An episode is a concrete occurrence inside a stage: something that happened at a time and place, involving named participants.
- Give each stage and episode a short label and a time range. When the evidence does not state a time, use "unknown".
- Time ranges use the most precise form the evidence supports: "2017", "2017-03", "2017-03-15", or a full timestamp.
- For every episode, list the provenance_indices of the paragraphs (as "doc:index" strings) that support it. Every episode must cite at least one paragraph.
- Do not invent stages or episodes the evidence does not support.

# Output Formatting
Return JSON with the following structure:
{
  "title": string,           // Short title for the whole event
  "event_type": string,      // e.g. "investment fraud", "money laundering"
  "time_range": {"start": string, "end": string},
  "stages": [
    {
      "label": string,
      "time_range": {"start": string, "end": string},
      "episodes": [
        {
          "label": string,
          "description": string,
          "time_range": {"start": string, "end": string},
          "provenance_indices": [string]
        }
      ]
    }
  ]
}
Output must be valid JSON only (no commentary, no extra text).
`

const SkeletonRetryPrompt = `
# Task Context
You are an analyst reconstructing the timeline of a financial event from evidence paragraphs. Your previous reply omitted provenance for some episodes, which makes them unusable. Produce the skeleton again and cite evidence for every episode.

# Background Data
Query: "%s"

Evidence paragraphs (each prefixed with "doc:index"):
%s

# Detailed Task Description & Rules
- Every episode must include at least one "doc:index" entry in provenance_indices, taken from the prefixes shown above.
- Episodes you cannot support with a cited paragraph must be left out entirely.
- Keep the same stage structure as the evidence supports; this is not a request to shorten the reconstruction.

# Output Formatting
Return JSON with the same structure as before:
{
  "title": string,
  "event_type": string,
  "time_range": {"start": string, "end": string},
  "stages": [
    {
      "label": string,
      "time_range": {"start": string, "end": string},
      "episodes": [
        {
          "label": string,
          "description": string,
          "time_range": {"start": string, "end": string},
          "provenance_indices": [string]
        }
      ]
    }
  ]
}
Output must be valid JSON only (no commentary, no extra text).
`

const ParticipantPrompt = `
# Task Context
You are an analyst extracting the participants of one episode of a financial event.

# Background Data
Episode: "%s"
Episode description: "%s"

Evidence paragraphs:
%s

# Detailed Task Description & Rules
- Extract every person, organization, fund, account, or instrument that takes part in this episode.
- For each participant give:
  * name: the most complete form used in the evidence
  * type: one of PERSON, ORGANIZATION, ACCOUNT, INSTRUMENT, LOCATION, OTHER
  * roles: what the participant does in this episode (e.g. "perpetrator", "victim", "intermediary", "investigator")
  * aliases: other names or spellings the evidence uses for the same participant
- Extract only participants the evidence names. Do not infer unnamed actors.

# Output Formatting
Return JSON with the following structure:
{
  "participants": [
    {
      "name": string,
      "type": string,
      "roles": [string],
      "aliases": [string]
    }
  ]
}
Output must be valid JSON only (no commentary, no extra text).
`

const TransactionPrompt = `
# Task Context
You are an analyst extracting the transactions that occur in one episode of a financial event.

# Background Data
Episode: "%s"
Episode description: "%s"

Known participants in this episode:
%s

Evidence paragraphs:
%s

# Detailed Task Description & Rules
- A transaction is a transfer, payment, purchase, sale, conversion, or seizure of value between two participants.
- For each transaction give:
  * source: the participant the value moves from, named exactly as in the known participant list
  * target: the participant the value moves to, named exactly as in the known participant list
  * type: e.g. "transfer", "purchase", "conversion", "seizure"
  * amount: the numeric amount if stated, otherwise null
  * currency: the currency or asset (e.g. "GBP", "BTC") if stated, otherwise ""
  * timestamp: when it happened, "unknown" if not stated
  * description: one sentence summarizing the transaction
- Use only participants from the known list for source and target. If the evidence names someone not in the list, leave that transaction out.

# Output Formatting
Return JSON with the following structure:
{
  "transactions": [
    {
      "source": string,
      "target": string,
      "type": string,
      "amount": number,
      "currency": string,
      "timestamp": string,
      "description": string
    }
  ]
}
Output must be valid JSON only (no commentary, no extra text).
`

const EpisodePrompt = `
# Task Context
You are an analyst writing the final account of one episode of a financial event, now that its participants and transactions are known.

# Background Data
Episode: "%s"
Current description: "%s"

Participants:
%s

Transactions:
%s

Evidence paragraphs:
%s

# Detailed Task Description & Rules
- Write a self-contained description of the episode in two to four sentences, integrating the participants and transactions.
- Refine the time range if the transactions pin it down more precisely than before. Keep "unknown" where nothing in the evidence states a time.
- Do not add information that is not in the evidence.

# Output Formatting
Return JSON with the following structure:
{
  "description": string,
  "time_range": {"start": string, "end": string}
}
Output must be valid JSON only (no commentary, no extra text).
`

const SameEntityPrompt = `
# Task Context
You are an assistant that decides whether two names from evidence about a financial event refer to the same real-world participant.

# Background Data
Name A: "%s" (type %s)
Name B: "%s" (type %s)

# Detailed Task Description & Rules
- Treat reordered personal names as the same participant (e.g., "Qian Zhimin" and "Zhimin Qian").
- Treat transliteration variants and added honorifics as the same participant.
- Treat distinct legal entities as different even when their names overlap (e.g., "Tianjin Lantian" vs "Lantian Holdings").
- When the evidence leaves real doubt, answer false.

# Output Formatting
Return JSON with the following structure:
{
  "same": bool,
  "reason": string
}
Output must be valid JSON only (no commentary, no extra text).
`

const DedupePrompt = `
# Task Context
You are a helpful assistant specialized in identifying duplicate participants of a financial event. You will be provided with a list of participants.

# Background Data
%s

# Detailed Task Description & Rules
- Find participants that are duplicates of each other based on their name and type.
- Consider participants as duplicates if they represent the same real-world person or organization despite naming differences.
- Personal names are often reordered between sources (e.g., "Qian Zhimin" vs "Zhimin Qian"); such pairs are duplicates.
- Be careful: participants with distinct identities should remain separate (e.g., a person and the company they own are separate participants).
- Choose a final, canonical name for each group of duplicate participants.
- Consider variations such as:
  * Case differences
  * Name order differences between naming conventions
  * Added legal entity suffixes (e.g., "Lantian" vs "Lantian Gerui Ltd")
  * Whitespace and punctuation differences

# Output Formatting
Return a JSON object with this structure:
{
  "duplicates": [
    {
      "canonicalName": "<chosen final name>",
      "participants": ["<name1>", "<name2>", "<name3>"]
    }
  ]
}
Output must be valid JSON only (no commentary, no extra text).
`
