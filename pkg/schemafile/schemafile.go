// Package schemafile declares model types in YAML, for types that carry no
// behavior and therefore need no Go code.
//
//	types:
//	  - name: Slider
//	    attributes:
//	      - {name: value, type: Number, default: 0}
//	      - {name: mode, type: Enum, values: [continuous, throttle]}
//	      - {name: alpha, type: Percent, dataspec: true}
//	      - {name: step, validate: "gt=0"}
package schemafile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/modelsync/modelsync/pkg/models"
	"gopkg.in/yaml.v3"
)

// File is the root of a schema file.
type File struct {
	Types []TypeDecl `yaml:"types" validate:"required,min=1,dive"`
}

// TypeDecl declares one model type.
type TypeDecl struct {
	Name string `yaml:"name" validate:"required"`
	// Base defaults to Model.
	Base       string     `yaml:"base"`
	Attributes []AttrDecl `yaml:"attributes" validate:"dive"`
}

// AttrDecl declares one attribute.
type AttrDecl struct {
	Name string `yaml:"name" validate:"required"`
	// Type is one of the policy names below. Empty accepts anything.
	Type     string   `yaml:"type" validate:"omitempty,oneof=Any Bool Number String Array Dict Instance Enum Percent"`
	Values   []string `yaml:"values" validate:"required_if=Type Enum"`
	Validate string   `yaml:"validate"`
	Default  any      `yaml:"default"`
	Internal bool     `yaml:"internal"`
	Dataspec bool     `yaml:"dataspec"`
	Optional bool     `yaml:"optional"`
}

var declValidator = validator.New()

// Parse decodes and checks a schema file.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding schema file: %w", err)
	}
	if err := declValidator.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid schema file: %w", err)
	}
	return &f, nil
}

// Load parses the schema file at path and registers its types into reg.
func Load(path string, reg *models.Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return f.Register(reg)
}

// Register builds every declared type, in order, and adds it to reg. A base
// must be registered already or declared earlier in the file.
func (f *File) Register(reg *models.Registry) error {
	for _, td := range f.Types {
		s, err := td.build(reg)
		if err != nil {
			return err
		}
		reg.Register(s)
	}
	return nil
}

func (td TypeDecl) build(reg *models.Registry) (s *models.Schema, err error) {
	baseName := td.Base
	if baseName == "" {
		baseName = models.BaseModel.Name()
	}
	base, ok := reg.Schema(baseName)
	if !ok {
		if baseName != models.BaseModel.Name() {
			return nil, fmt.Errorf("type %s: unknown base %s", td.Name, baseName)
		}
		base = models.BaseModel
	}

	defs := make([]models.AttrDef, 0, len(td.Attributes))
	for _, ad := range td.Attributes {
		def, err := ad.build()
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", td.Name, err)
		}
		defs = append(defs, def)
	}

	// schema construction panics on redeclared attributes
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("type %s: %v", td.Name, r)
		}
	}()
	return base.Extend(td.Name, defs...), nil
}

func (ad AttrDecl) build() (models.AttrDef, error) {
	policy, err := ad.policy()
	if err != nil {
		return models.AttrDef{}, err
	}
	def := models.AttrDef{
		Name:     ad.Name,
		Policy:   policy,
		Internal: ad.Internal,
		Dataspec: ad.Dataspec,
		Optional: ad.Optional,
	}
	if ad.Default != nil {
		v, err := models.FromNative(ad.Default)
		if err != nil {
			return models.AttrDef{}, fmt.Errorf("attribute %s: %w", ad.Name, err)
		}
		if err := policy.Validate(v); err != nil {
			return models.AttrDef{}, fmt.Errorf("attribute %s default: %w", ad.Name, err)
		}
		def.Default = models.DefaultValue(v)
	}
	return def, nil
}

// tagKinds lists the types a validate tag can refine. NullKind means any kind.
var tagKinds = map[string]models.Kind{
	"":       models.NullKind,
	"Any":    models.NullKind,
	"Bool":   models.BoolKind,
	"Number": models.NumberKind,
	"String": models.StringKind,
	"Array":  models.ArrayKind,
	"Dict":   models.MapKind,
}

func (ad AttrDecl) policy() (models.Policy, error) {
	if ad.Validate != "" {
		kind, ok := tagKinds[ad.Type]
		if !ok {
			return nil, fmt.Errorf("attribute %s: validate does not apply to %s", ad.Name, ad.Type)
		}
		if kind == models.NullKind {
			return models.Tagged(ad.Name, ad.Validate), nil
		}
		return models.Tagged(ad.Name, ad.Validate, kind), nil
	}
	switch ad.Type {
	case "", "Any":
		return models.AnyPolicy, nil
	case "Bool":
		return models.BoolPolicy, nil
	case "Number":
		return models.NumberPolicy, nil
	case "String":
		return models.StringPolicy, nil
	case "Array":
		return models.ArrayPolicy, nil
	case "Dict":
		return models.MapPolicy, nil
	case "Instance":
		return models.InstancePolicy, nil
	case "Enum":
		return models.Enum(ad.Name, ad.Values...), nil
	case "Percent":
		return models.Percent, nil
	}
	return nil, fmt.Errorf("attribute %s: unknown type %s", ad.Name, ad.Type)
}
