package db

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

// Supported distance metrics.
const (
	DistanceL2     DistanceMetric = "L2"
	DistanceIP     DistanceMetric = "IP"
	DistanceCosine DistanceMetric = "COSINE"
)

// VectorAlgorithm selects the ANN structure behind a vector field.
type VectorAlgorithm string

// Supported vector algorithms.
const (
	VectorHNSW VectorAlgorithm = "HNSW"
	VectorFlat VectorAlgorithm = "FLAT"
)

// FieldKind is the schema type keyword of an index field.
type FieldKind string

// Field kinds accepted in an index schema.
const (
	FieldNumeric FieldKind = "NUMERIC"
	FieldTag     FieldKind = "TAG"
	FieldText    FieldKind = "TEXT"
	FieldVector  FieldKind = "VECTOR"
)

// VectorParams configures a VECTOR field. Zero M, EFConstruction and BlockSize keep server defaults.
type VectorParams struct {
	Algorithm      VectorAlgorithm
	Dim            int
	Distance       DistanceMetric
	M              int
	EFConstruction int
	BlockSize      int
}

// IndexField is one hash field covered by an index.
type IndexField struct {
	Name      string
	Kind      FieldKind
	Weight    float64 // TEXT only; zero keeps the server default of 1
	Separator string  // TAG only
	Vector    *VectorParams
}

// IndexDefinition describes an FT index over hashes sharing the given key prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// IsValidIdentifier reports whether s is usable as an index name.
func IsValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// Validate checks that the definition can be rendered into FT.CREATE.
func (idx *IndexDefinition) Validate() error {
	switch {
	case idx.Name == "":
		return errors.New("index name is required")
	case !IsValidIdentifier(idx.Name):
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	case len(idx.Fields) == 0:
		return errors.New("at least one field is required")
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	for i := range idx.Fields {
		if err := idx.Fields[i].validate(); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
		name := idx.Fields[i].Name
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate field name: %s", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (f *IndexField) validate() error {
	if f.Name == "" {
		return errors.New("field name is required")
	}
	switch f.Kind {
	case FieldNumeric, FieldTag:
	case FieldText:
		if f.Weight < 0 {
			return errors.New("text field weight must not be negative")
		}
	case FieldVector:
		if f.Vector == nil || f.Vector.Dim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
	default:
		return fmt.Errorf("unknown field kind %q", f.Kind)
	}
	return nil
}

// CreateArgs renders the arguments following FT.CREATE.
func (idx *IndexDefinition) CreateArgs() ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	args := []string{idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	args = append(args, "SCHEMA")
	for i := range idx.Fields {
		args = append(args, idx.Fields[i].args()...)
	}
	return args, nil
}

func (f *IndexField) args() []string {
	out := []string{f.Name, string(f.Kind)}
	switch f.Kind {
	case FieldText:
		if f.Weight > 0 {
			out = append(out, "WEIGHT", strconv.FormatFloat(f.Weight, 'g', -1, 64))
		}
	case FieldTag:
		if f.Separator != "" {
			out = append(out, "SEPARATOR", f.Separator)
		}
	case FieldVector:
		out = append(out, f.Vector.args()...)
	}
	return out
}

func (v *VectorParams) args() []string {
	algo, distance := v.Algorithm, v.Distance
	if algo == "" {
		algo = VectorFlat
	}
	if distance == "" {
		distance = DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dim),
		"DISTANCE_METRIC", string(distance),
	}
	optional := func(name string, n int) {
		if n > 0 {
			attrs = append(attrs, name, strconv.Itoa(n))
		}
	}
	if algo == VectorHNSW {
		optional("M", v.M)
		optional("EF_CONSTRUCTION", v.EFConstruction)
	} else {
		optional("BLOCK_SIZE", v.BlockSize)
	}

	return append([]string{string(algo), strconv.Itoa(len(attrs))}, attrs...)
}

// String renders the FT.CREATE command, or the validation error when the definition is invalid.
func (idx *IndexDefinition) String() string {
	args, err := idx.CreateArgs()
	if err != nil {
		return "invalid index: " + err.Error()
	}
	return "FT.CREATE " + strings.Join(args, " ")
}
