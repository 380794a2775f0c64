package routing

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var js = jsoniter.ConfigCompatibleWithStandardLibrary

// interface guard
var (
	_ json.Marshaler   = (*Table)(nil)
	_ json.Unmarshaler = (*Table)(nil)
)

// tableJSON is the verbatim on-disk form of a Table
type tableJSON struct {
	Destinations []int `json:"destinations"`
	Offsets      []int `json:"offsets"`
	Indices      []int `json:"indices"`
}

func (t *Table) MarshalJSON() ([]byte, error) {
	return js.Marshal(tableJSON{
		Destinations: nonNil(t.destinations),
		Offsets:      t.offsets,
		Indices:      nonNil(t.IndexBuffer()),
	})
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var raw tableJSON
	if err := js.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode routing table: %w", err)
	}
	nt, err := New(raw.Destinations, raw.Offsets, raw.Indices)
	if err != nil {
		return fmt.Errorf("decode routing table: %w", err)
	}
	*t = *nt
	return nil
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
