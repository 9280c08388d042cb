package model

// Assignment is a server-chosen text handed to a participant for one round
type Assignment struct {
	TextID       string `json:"text_id"`
	Topic        string `json:"topic"`
	AllocationID string `json:"allocation_id,omitempty"`
}

// CatalogRecord is one element of the texts.json array
type CatalogRecord struct {
	TextID string `json:"text_id"`
	Text   string `json:"text"`
	Topic  string `json:"topic"`
}

// CatalogEntry is the indexed form of a catalog record
type CatalogEntry struct {
	Text  string `json:"text"`
	Topic string `json:"topic"`
}

// Catalog maps text_id to its entry. Read-only once built.
type Catalog struct {
	entries map[string]CatalogEntry
}

// NewCatalog indexes records in order; a later duplicate id replaces an earlier one.
func NewCatalog(records []CatalogRecord) *Catalog {
	entries := make(map[string]CatalogEntry, len(records))
	for _, r := range records {
		entries[r.TextID] = CatalogEntry{Text: r.Text, Topic: r.Topic}
	}
	return &Catalog{entries: entries}
}

// Lookup returns the entry for textID
func (c *Catalog) Lookup(textID string) (CatalogEntry, bool) {
	if c == nil {
		return CatalogEntry{}, false
	}
	e, ok := c.entries[textID]
	return e, ok
}

// Len returns the number of distinct text ids
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// IDs returns all text ids in no particular order
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// ParsedText is the display form of a catalog text
type ParsedText struct {
	Title *string `json:"title"`
	Body  string  `json:"body"`
}

// HasTitle reports whether a headline was recognized
func (p ParsedText) HasTitle() bool {
	return p.Title != nil
}

// SubmitResult is the server acknowledgement of a submission. Raw holds the
// decoded JSON of whatever shape the server sent.
type SubmitResult struct {
	Raw interface{} `json:"raw"`
}
