package protocol

import (
	"encoding/json"

	"github.com/lazypower/lattice/internal/store"
)

// Schema describes one operation's input for transports that advertise tools.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// RawInputSchema returns the input schema as JSON.
func (s Schema) RawInputSchema() json.RawMessage {
	raw, _ := json.Marshal(s.InputSchema)
	return raw
}

// Schemas returns the declared input schema of every operation.
func Schemas() []Schema {
	tags := arrayProperty("Tags, matched case-insensitively.", stringProperty("tag"))
	return []Schema{
		{
			Name:        OpRemember,
			Description: "Store a memory as a node in the subject's graph. Identical content returns the existing node.",
			InputSchema: objectSchema(map[string]any{
				"content":      stringProperty("The memory text. Immutable once stored."),
				"nodeType":     stringEnumProperty("Modality of the memory.", store.NodeTypes...),
				"salience":     numberProperty("Importance ceiling for gravity. Defaults to 1."),
				"gravity":      numberProperty("Initial gravity, clamped to salience. Defaults to salience."),
				"depth":        numberProperty("Distance from core identity. Defaults to 0.5."),
				"confidence":   numberProperty("Confidence between 0 and 1."),
				"tags":         tags,
				"sourceType":   stringProperty("Where the memory came from."),
				"sourceId":     stringProperty("Identifier within the source."),
				"relatedTo":    arrayProperty("Existing node ids to link from the new node.", integerProperty("node id")),
				"relationType": stringEnumProperty("Relation for relatedTo edges. Defaults to references.", store.RelationTypes...),
			}, "content", "nodeType"),
		},
		{
			Name:        OpRecall,
			Description: "Rank the subject's memories against a query by similarity, gravity and depth. Returned nodes gain access gravity.",
			InputSchema: objectSchema(map[string]any{
				"query":        stringProperty("What to remember."),
				"maxResults":   integerProperty("Maximum ranked results. Defaults to 10."),
				"nodeType":     stringEnumProperty("Only consider this modality.", store.NodeTypes...),
				"tags":         tags,
				"minGravity":   numberProperty("Only consider nodes with at least this gravity."),
				"includeEdges": booleanProperty("Include one-hop neighbours as context. Defaults to true."),
			}, "query"),
		},
		{
			Name:        OpRelate,
			Description: "Create a directed edge between two nodes of the subject's graph.",
			InputSchema: objectSchema(map[string]any{
				"sourceId":     integerProperty("Source node id."),
				"targetId":     integerProperty("Target node id."),
				"relationType": stringEnumProperty("Kind of relation.", store.RelationTypes...),
				"weight":       numberProperty("Edge weight between 0 and 1. Defaults to 1."),
				"context":      stringProperty("Why the nodes are related."),
			}, "sourceId", "targetId", "relationType"),
		},
		{
			Name:        OpObserve,
			Description: "Append an entry to the subject's ledger. Ledger entries are never changed or removed.",
			InputSchema: objectSchema(map[string]any{
				"entryType":     stringEnumProperty("Kind of entry.", store.EntryTypes...),
				"content":       stringProperty("The entry text."),
				"confidence":    numberProperty("Confidence between 0 and 1. Defaults to 1."),
				"relatedNodeId": integerProperty("Node the entry is about."),
				"actor":         stringProperty("Who recorded the entry."),
			}, "entryType", "content"),
		},
		{
			Name:        OpForget,
			Description: "Push a node away from the core by increasing its depth. Content is kept.",
			InputSchema: objectSchema(map[string]any{
				"nodeId": integerProperty("Node to forget."),
				"amount": numberProperty("Depth increase. Defaults to 0.1."),
			}, "nodeId"),
		},
		{
			Name:        OpReinforce,
			Description: "Raise gravity of nodes matching any tag or id, up to each node's salience.",
			InputSchema: objectSchema(map[string]any{
				"tags":    tags,
				"nodeIds": arrayProperty("Explicit node ids.", integerProperty("node id")),
				"amount":  numberProperty("Gravity increase. Defaults to 0.5."),
			}),
		},
		{
			Name:        OpWhoAmI,
			Description: "Read-only identity summary: position, top-gravity nodes and recent ledger entries.",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        OpStatus,
			Description: "Aggregate graph statistics: counts, averages, top nodes and recent activity.",
			InputSchema: objectSchema(map[string]any{}),
		},
	}
}

// Schema helpers for building JSON Schema definitions.

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func stringEnumProperty(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func numberProperty(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func integerProperty(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func booleanProperty(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func arrayProperty(description string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": description, "items": items}
}
