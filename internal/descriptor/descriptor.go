// Package descriptor defines the portable output of page compilation: a tree
// of scopes whose values are qualified expressions plus the reference
// expressions the runtime evaluates to link dependencies. A descriptor holds
// no state from the compiler and round-trips through JSON.
package descriptor

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jward/pagelogic/internal/expr"
)

// Scope is one scope of a compiled page.
type Scope struct {
	ID       int
	Name     string
	Isolate  bool
	Values   map[string]*Value
	Children []*Scope
}

// Value is one reactive cell. Exp is evaluated with the owning scope as
// receiver. Each entry of Refs, evaluated with the same receiver, yields the
// upstream runtime Value it depends on.
type Value struct {
	Exp  expr.Node
	Refs []expr.Node
}

// Keys returns the value keys of s in sorted order.
func (s *Scope) Keys() []string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Walk visits s and its descendants in id order.
func Walk(s *Scope, fn func(*Scope)) {
	fn(s)
	for _, c := range s.Children {
		Walk(c, fn)
	}
}

// Count returns the number of scopes and values in the tree rooted at s.
func Count(s *Scope) (scopes, values int) {
	Walk(s, func(sc *Scope) {
		scopes++
		values += len(sc.Values)
	})
	return scopes, values
}

type jsonValue struct {
	Exp  map[string]any   `json:"exp"`
	Refs []map[string]any `json:"refs,omitempty"`
}

type jsonScope struct {
	ID       int                   `json:"id"`
	Name     string                `json:"name,omitempty"`
	Isolate  bool                  `json:"isolate,omitempty"`
	Values   map[string]*jsonValue `json:"values,omitempty"`
	Children []*Scope              `json:"children,omitempty"`
}

// MarshalJSON encodes s in the nested object shape
// { id, name?, isolate?, values?: { key: { exp, refs? } }, children? }.
func (s *Scope) MarshalJSON() ([]byte, error) {
	js := jsonScope{ID: s.ID, Name: s.Name, Isolate: s.Isolate, Children: s.Children}
	if len(s.Values) > 0 {
		js.Values = make(map[string]*jsonValue, len(s.Values))
		for k, v := range s.Values {
			jv := &jsonValue{Exp: expr.ToJSON(v.Exp)}
			for _, r := range v.Refs {
				jv.Refs = append(jv.Refs, expr.ToJSON(r))
			}
			js.Values[k] = jv
		}
	}
	return json.Marshal(js)
}

// UnmarshalJSON decodes the output of MarshalJSON.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       int                       `json:"id"`
		Name     string                    `json:"name"`
		Isolate  bool                      `json:"isolate"`
		Values   map[string]map[string]any `json:"values"`
		Children []*Scope                  `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Scope{ID: raw.ID, Name: raw.Name, Isolate: raw.Isolate, Children: raw.Children, Values: map[string]*Value{}}
	for k, jv := range raw.Values {
		exp, err := expr.FromJSON(jv["exp"])
		if err != nil {
			return fmt.Errorf("descriptor: scope %d value %s: %w", raw.ID, k, err)
		}
		if exp == nil {
			return fmt.Errorf("descriptor: scope %d value %s: missing exp", raw.ID, k)
		}
		v := &Value{Exp: exp}
		refs, _ := jv["refs"].([]any)
		for _, r := range refs {
			ref, err := expr.FromJSON(r)
			if err != nil {
				return fmt.Errorf("descriptor: scope %d value %s: %w", raw.ID, k, err)
			}
			v.Refs = append(v.Refs, ref)
		}
		s.Values[k] = v
	}
	return nil
}

// Decode parses a JSON descriptor.
func Decode(data []byte) (*Scope, error) {
	var s Scope
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("descriptor: decode: %w", err)
	}
	return &s, nil
}

// Encode returns the JSON form of s.
func Encode(s *Scope) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("descriptor: encode: %w", err)
	}
	return data, nil
}
