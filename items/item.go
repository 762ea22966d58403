package items

// Item is one catalog entry.
type Item struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Details Details `json:"details"`
}

// Summary is an item without its details, as returned by list and item
// queries.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Details is the nested resource of an item.
type Details struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summary returns the item without its details.
func (it Item) Summary() Summary {
	return Summary{ID: it.ID, Name: it.Name}
}
