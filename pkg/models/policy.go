package models

import (
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/modelsync/modelsync/pkg/constants"
)

// Policy validates literal values written to a property. Null is always
// accepted and never reaches a policy.
type Policy interface {
	Name() string
	Validate(v Value) error
}

type predicate struct {
	name string
	pred func(Value) bool
}

// Predicate builds a policy from a boolean check.
func Predicate(name string, pred func(Value) bool) Policy {
	return predicate{name: name, pred: pred}
}

func (p predicate) Name() string {
	return p.name
}

func (p predicate) Validate(v Value) error {
	if !p.pred(v) {
		return fmt.Errorf("%w: %s given %s", constants.ErrInvalidValue, p.name, v)
	}
	return nil
}

var (
	AnyPolicy    = Predicate("Any", func(Value) bool { return true })
	BoolPolicy   = Predicate("Bool", func(v Value) bool { return v.kind == BoolKind })
	StringPolicy = Predicate("String", func(v Value) bool { return v.kind == StringKind })
	ArrayPolicy  = Predicate("Array", func(v Value) bool { return v.kind == ArrayKind })
	MapPolicy    = Predicate("Dict", func(v Value) bool { return v.kind == MapKind })
	// NumberPolicy accepts booleans too.
	NumberPolicy = Predicate("Number", func(v Value) bool {
		return v.kind == NumberKind || v.kind == BoolKind
	})
	InstancePolicy = Predicate("Instance", func(v Value) bool { return v.kind == ModelKind })
)

// Enum accepts one of the given strings.
func Enum(name string, values ...string) Policy {
	return Predicate(name, func(v Value) bool {
		s, ok := v.AsString()
		return ok && slices.Contains(values, s)
	})
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

type tagged struct {
	name  string
	tag   string
	kinds []Kind
}

// Tagged validates the native form of a value with a validator tag, e.g.
// "gte=0,lte=1" for a percentage or "oneof=left right center". When kinds
// are given, values of any other kind are rejected before the tag runs.
func Tagged(name, tag string, kinds ...Kind) Policy {
	return tagged{name: name, tag: tag, kinds: kinds}
}

func (t tagged) Name() string {
	return t.name
}

func (t tagged) Validate(v Value) (err error) {
	if v.kind == ModelKind || v.kind == RefKind {
		return fmt.Errorf("%w: %s given a model reference", constants.ErrInvalidValue, t.name)
	}
	if len(t.kinds) > 0 && !slices.Contains(t.kinds, v.kind) {
		return fmt.Errorf("%w: %s given %s", constants.ErrInvalidValue, t.name, v)
	}
	// validator panics on tags that do not apply to the field type
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s given %s: %v", constants.ErrInvalidValue, t.name, v, r)
		}
	}()
	if err := getValidator().Var(v.Native(), t.tag); err != nil {
		return fmt.Errorf("%w: %s given %s: %v", constants.ErrInvalidValue, t.name, v, err)
	}
	return nil
}

// Percent accepts numbers in [0, 1].
var Percent = Tagged("Percent", "gte=0,lte=1", NumberKind)
