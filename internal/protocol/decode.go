package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	oneOf := func(set []string) validator.Func {
		return func(fl validator.FieldLevel) bool {
			return slices.Contains(set, fl.Field().String())
		}
	}
	v.RegisterValidation("node_type", oneOf(store.NodeTypes))
	v.RegisterValidation("relation_type", oneOf(store.RelationTypes))
	v.RegisterValidation("entry_type", oneOf(store.EntryTypes))
	return v
}

func newOperation(name string) (Operation, bool) {
	switch name {
	case OpRemember:
		return &Remember{}, true
	case OpRecall:
		return &Recall{}, true
	case OpRelate:
		return &Relate{}, true
	case OpObserve:
		return &Observe{}, true
	case OpForget:
		return &Forget{}, true
	case OpReinforce:
		return &Reinforce{}, true
	case OpWhoAmI:
		return &WhoAmI{}, true
	case OpStatus:
		return &Status{}, true
	}
	return nil, false
}

// Decode parses and validates raw arguments for the named operation. Unknown
// operations, unknown fields, malformed JSON and constraint failures are all
// validation errors.
func Decode(name string, raw json.RawMessage) (Operation, error) {
	op, ok := newOperation(name)
	if !ok {
		return nil, apperr.Validation("decode", "unknown operation %q", name)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(op); err != nil {
			return nil, apperr.Validation(name, "invalid arguments: %v", err)
		}
	}

	if err := validate.Struct(op); err != nil {
		return nil, apperr.Validation(name, "%s", describe(err))
	}
	if r, ok := op.(*Reinforce); ok && len(r.Tags) == 0 && len(r.NodeIDs) == 0 {
		return nil, apperr.Validation(name, "tags or nodeIds required")
	}
	return op, nil
}

// DecodeCall decodes c.
func DecodeCall(c Call) (Operation, error) {
	return Decode(c.Op, c.Args)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "node_type", "relation_type", "entry_type":
			parts = append(parts, fmt.Sprintf("%s: unknown value %q", fe.Field(), fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}
