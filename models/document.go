package models

// Metadata keys set by the loaders.
const (
	MetaSource = "source"
	MetaTitle  = "title"
	MetaPage   = "page"
)

// Document is one unit of extracted content, a PDF page for instance.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func (d Document) Source() string { return d.Metadata[MetaSource] }

// Chunk is a bounded span of a Document. It shares the parent's metadata.
type Chunk struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func (c Chunk) Source() string { return c.Metadata[MetaSource] }
