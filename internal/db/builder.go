package db

// IndexBuilder assembles an IndexDefinition field by field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a definition for the named index.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix limits the index to keys starting with any of prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Numeric adds a sortable numeric field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Kind: FieldNumeric})
}

// Tag adds an exact-match tag field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Kind: FieldTag})
}

// Text adds a full-text field with the default weight.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Kind: FieldText})
}

// WeightedText adds a full-text field whose matches count weight times toward BM25.
func (b *IndexBuilder) WeightedText(name string, weight float64) *IndexBuilder {
	return b.add(IndexField{Name: name, Kind: FieldText, Weight: weight})
}

// VectorHNSW adds an HNSW vector field.
func (b *IndexBuilder) VectorHNSW(name string, dim int, distance DistanceMetric, m, efConstruction int) *IndexBuilder {
	return b.add(IndexField{Name: name, Kind: FieldVector, Vector: &VectorParams{
		Algorithm: VectorHNSW, Dim: dim, Distance: distance, M: m, EFConstruction: efConstruction,
	}})
}

// VectorFlat adds a brute-force vector field.
func (b *IndexBuilder) VectorFlat(name string, dim int, distance DistanceMetric, blockSize int) *IndexBuilder {
	return b.add(IndexField{Name: name, Kind: FieldVector, Vector: &VectorParams{
		Algorithm: VectorFlat, Dim: dim, Distance: distance, BlockSize: blockSize,
	}})
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}
