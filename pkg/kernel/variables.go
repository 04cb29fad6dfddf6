package kernel

import (
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// InputKey is the reserved variable holding the current pipeline input.
const InputKey = "input"

type variable struct {
	name  string
	value string
}

// Variables is the context passed between functions. Names are
// case-insensitive; the first spelling used is kept for display.
// A Variables value is not safe for concurrent use.
type Variables struct {
	values map[string]variable
}

// NewVariables returns a context whose input is input.
func NewVariables(input string) *Variables {
	v := &Variables{values: make(map[string]variable)}
	v.Set(InputKey, input)
	return v
}

// Input returns the current input.
func (v *Variables) Input() string {
	s, _ := v.Get(InputKey)
	return s
}

// SetInput replaces the current input.
func (v *Variables) SetInput(value string) {
	v.Set(InputKey, value)
}

// Get returns the value stored under name.
func (v *Variables) Get(name string) (string, bool) {
	e, ok := v.values[strings.ToLower(name)]
	return e.value, ok
}

// Set stores value under name.
func (v *Variables) Set(name, value string) {
	key := strings.ToLower(name)
	if e, ok := v.values[key]; ok {
		e.value = value
		v.values[key] = e
		return
	}
	v.values[key] = variable{name: name, value: value}
}

// Clone returns an independent copy.
func (v *Variables) Clone() *Variables {
	c := &Variables{values: make(map[string]variable, len(v.values))}
	for k, e := range v.values {
		c.values[k] = e
	}
	return c
}

// Names returns the variable names in sorted order.
func (v *Variables) Names() []string {
	names := make([]string, 0, len(v.values))
	for _, e := range v.values {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the variables keyed by their display name.
func (v *Variables) All() map[string]string {
	out := make(map[string]string, len(v.values))
	for _, e := range v.values {
		out[e.name] = e.value
	}
	return out
}

func (v *Variables) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.All())
}
