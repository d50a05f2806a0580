package emotion

// Tag identifies one emotion in the fixed vocabulary.
type Tag string

const (
	Joy       Tag = "joy"
	Anxiety   Tag = "anxiety"
	Anger     Tag = "anger"
	Sadness   Tag = "sadness"
	Fatigue   Tag = "fatigue"
	Guilt     Tag = "guilt"
	Affection Tag = "affection"
)

// All lists the vocabulary in declared order. Ties in "most frequent" lookups
// resolve to the earlier tag in this order.
var All = []Tag{Joy, Anxiety, Anger, Sadness, Fatigue, Guilt, Affection}

type meta struct {
	label    string
	color    string
	positive bool
}

var vocabulary = map[Tag]meta{
	Joy:       {label: "喜び", color: "#fbbf24", positive: true},
	Anxiety:   {label: "不安", color: "#3b82f6"},
	Anger:     {label: "怒り", color: "#ef4444"},
	Sadness:   {label: "悲しみ", color: "#6b7280"},
	Fatigue:   {label: "疲労", color: "#8b5cf6"},
	Guilt:     {label: "罪悪感", color: "#f97316"},
	Affection: {label: "愛情", color: "#ec4899", positive: true},
}

// Valid reports whether t belongs to the vocabulary.
func (t Tag) Valid() bool {
	_, ok := vocabulary[t]
	return ok
}

// Label returns the display label, or the raw tag when unknown.
func (t Tag) Label() string {
	if m, ok := vocabulary[t]; ok {
		return m.label
	}
	return string(t)
}

// Color returns the chart color for t.
func (t Tag) Color() string {
	return vocabulary[t].color
}

func (t Tag) Positive() bool {
	m, ok := vocabulary[t]
	return ok && m.positive
}

func (t Tag) Negative() bool {
	m, ok := vocabulary[t]
	return ok && !m.positive
}

// Parse converts raw strings into tags, dropping duplicates while keeping the
// first-seen order. It returns false if any value is outside the vocabulary.
func Parse(raw []string) ([]Tag, bool) {
	out := make([]Tag, 0, len(raw))
	seen := make(map[Tag]bool, len(raw))
	for _, s := range raw {
		t := Tag(s)
		if !t.Valid() {
			return nil, false
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, true
}

// Strings is the inverse of Parse.
func Strings(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// Info is the presentation record served to clients.
type Info struct {
	Tag      Tag    `json:"tag"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Positive bool   `json:"positive"`
}

// Catalog returns the vocabulary with presentation data, in declared order.
func Catalog() []Info {
	out := make([]Info, 0, len(All))
	for _, t := range All {
		m := vocabulary[t]
		out = append(out, Info{Tag: t, Label: m.label, Color: m.color, Positive: m.positive})
	}
	return out
}
