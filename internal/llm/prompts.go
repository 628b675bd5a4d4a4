package llm

import (
	"fmt"
	"strings"
)

// InternalSentinel opens every prompt lattice sends. Hooks that see it in a
// transcript know the session was lattice talking to itself and skip it.
const InternalSentinel = "[lattice-internal]"

// SubconsciousPrompt asks the model to propose memory operations for an event.
// graph and ledger are pre-rendered summaries of the subject's current state.
func SubconsciousPrompt(graph, ledger, event string, maxOps int) string {
	if strings.TrimSpace(graph) == "" {
		graph = "(no memories yet)"
	}
	if strings.TrimSpace(ledger) == "" {
		ledger = "(no ledger entries yet)"
	}
	return fmt.Sprintf(`%s
You maintain the long-term memory of one person. Read the event below and propose
changes to their memory graph.

CURRENT MEMORIES (id | type | gravity/salience | depth | tags | content):
%s

RECENT LEDGER:
%s

EVENT:
%s

Allowed operations:
- remember: {"content": "...", "nodeType": "<type>", "tags": ["..."], "salience": 1.0, "relatedTo": [id]}
  nodeType is one of: episodic, semantic, procedural, emotional, sensory, conversation,
  concept, insight, decision, pattern, question, contradiction, fact
- relate: {"sourceId": id, "targetId": id, "relationType": "<relation>", "weight": 0.0-1.0}
  relationType is one of: references, develops, contradicts, branches, causes, supports,
  temporal, semantic, precedes
- observe: {"entryType": "<entry>", "content": "...", "confidence": 0.0-1.0}
  entryType is one of: observation, inference, commitment, question, decision, pattern, surfaced
- reinforce: {"tags": ["..."], "nodeIds": [id], "amount": 0.0-1.0}
- forget: {"nodeId": id, "amount": 0.0-1.0}

Rules:
- Only reference node ids listed above
- Reinforce memories the event confirms; forget memories it makes stale
- Remember only durable facts about the person, never transient details
- Do not repeat a memory that already exists
- At most %d operations
- Return ONLY a JSON array, no other text

Return a JSON array:
[{"op": "remember|relate|observe|reinforce|forget", "args": {...}}]

If nothing is worth changing, return: []`, InternalSentinel, graph, ledger, event, maxOps)
}
