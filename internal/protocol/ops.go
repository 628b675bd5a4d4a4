// Package protocol defines the closed set of memory operations, their input
// schemas, and the dispatcher that applies them to the engine.
package protocol

import (
	"context"
	"encoding/json"
)

// Operation names.
const (
	OpRemember  = "remember"
	OpRecall    = "recall"
	OpRelate    = "relate"
	OpObserve   = "observe"
	OpForget    = "forget"
	OpReinforce = "reinforce"
	OpWhoAmI    = "who_am_i"
	OpStatus    = "status"
)

// Names lists every operation in presentation order.
var Names = []string{OpRemember, OpRecall, OpRelate, OpObserve, OpForget, OpReinforce, OpWhoAmI, OpStatus}

// Operation is one decoded, validated request.
type Operation interface {
	Name() string
	Accept(ctx context.Context, subject string, v Visitor) (any, error)
}

// Visitor handles each operation. Adding an operation without extending
// Visitor, and therefore every implementation, does not compile.
type Visitor interface {
	VisitRemember(ctx context.Context, subject string, op *Remember) (any, error)
	VisitRecall(ctx context.Context, subject string, op *Recall) (any, error)
	VisitRelate(ctx context.Context, subject string, op *Relate) (any, error)
	VisitObserve(ctx context.Context, subject string, op *Observe) (any, error)
	VisitForget(ctx context.Context, subject string, op *Forget) (any, error)
	VisitReinforce(ctx context.Context, subject string, op *Reinforce) (any, error)
	VisitWhoAmI(ctx context.Context, subject string, op *WhoAmI) (any, error)
	VisitStatus(ctx context.Context, subject string, op *Status) (any, error)
}

// Call is an operation name with raw JSON arguments, as received from a
// transport or proposed by the subconscious processor.
type Call struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// NewCall marshals args into a Call.
func NewCall(op string, args any) (Call, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Call{}, err
	}
	return Call{Op: op, Args: raw}, nil
}

type Remember struct {
	Content      string   `json:"content" validate:"required"`
	NodeType     string   `json:"nodeType" validate:"required,node_type"`
	Salience     *float64 `json:"salience,omitempty" validate:"omitempty,gte=0"`
	Gravity      *float64 `json:"gravity,omitempty" validate:"omitempty,gte=0"`
	Depth        *float64 `json:"depth,omitempty" validate:"omitempty,gte=0"`
	Confidence   *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Tags         []string `json:"tags,omitempty" validate:"omitempty,dive,required,max=64"`
	SourceType   string   `json:"sourceType,omitempty"`
	SourceID     string   `json:"sourceId,omitempty"`
	RelatedTo    []int64  `json:"relatedTo,omitempty" validate:"omitempty,dive,gt=0"`
	RelationType string   `json:"relationType,omitempty" validate:"omitempty,relation_type"`
}

type Recall struct {
	Query        string   `json:"query" validate:"required"`
	MaxResults   int      `json:"maxResults,omitempty" validate:"gte=0,lte=100"`
	NodeType     string   `json:"nodeType,omitempty" validate:"omitempty,node_type"`
	Tags         []string `json:"tags,omitempty" validate:"omitempty,dive,required"`
	MinGravity   *float64 `json:"minGravity,omitempty" validate:"omitempty,gte=0"`
	IncludeEdges *bool    `json:"includeEdges,omitempty"`
}

type Relate struct {
	SourceID     int64    `json:"sourceId" validate:"required,gt=0"`
	TargetID     int64    `json:"targetId" validate:"required,gt=0"`
	RelationType string   `json:"relationType" validate:"required,relation_type"`
	Weight       *float64 `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Context      string   `json:"context,omitempty"`
}

type Observe struct {
	EntryType     string   `json:"entryType" validate:"required,entry_type"`
	Content       string   `json:"content" validate:"required"`
	Confidence    *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	RelatedNodeID *int64   `json:"relatedNodeId,omitempty" validate:"omitempty,gt=0"`
	Actor         string   `json:"actor,omitempty"`
}

type Forget struct {
	NodeID int64    `json:"nodeId" validate:"required,gt=0"`
	Amount *float64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
}

type Reinforce struct {
	Tags    []string `json:"tags,omitempty" validate:"omitempty,dive,required"`
	NodeIDs []int64  `json:"nodeIds,omitempty" validate:"omitempty,dive,gt=0"`
	Amount  *float64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
}

type WhoAmI struct{}

type Status struct{}

func (*Remember) Name() string  { return OpRemember }
func (*Recall) Name() string    { return OpRecall }
func (*Relate) Name() string    { return OpRelate }
func (*Observe) Name() string   { return OpObserve }
func (*Forget) Name() string    { return OpForget }
func (*Reinforce) Name() string { return OpReinforce }
func (*WhoAmI) Name() string    { return OpWhoAmI }
func (*Status) Name() string    { return OpStatus }

func (o *Remember) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitRemember(ctx, s, o)
}
func (o *Recall) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitRecall(ctx, s, o)
}
func (o *Relate) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitRelate(ctx, s, o)
}
func (o *Observe) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitObserve(ctx, s, o)
}
func (o *Forget) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitForget(ctx, s, o)
}
func (o *Reinforce) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitReinforce(ctx, s, o)
}
func (o *WhoAmI) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitWhoAmI(ctx, s, o)
}
func (o *Status) Accept(ctx context.Context, s string, v Visitor) (any, error) {
	return v.VisitStatus(ctx, s, o)
}
