package nlu

import "strings"

// Entity is a named value extracted from an utterance (a date, an email, ...).
type Entity struct {
	Name  string `json:"entity"`
	Value string `json:"value"`
}

// Intent is the classified meaning of one utterance.
type Intent struct {
	Keyword    string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Entities   []Entity `json:"entities,omitempty"`
}

// EntityValues returns the extracted values in recognition order.
func (in Intent) EntityValues() []string {
	values := make([]string, 0, len(in.Entities))
	for _, e := range in.Entities {
		values = append(values, e.Value)
	}
	return values
}

// FirstEntityValue returns the first extracted value, or "".
func (in Intent) FirstEntityValue() string {
	if len(in.Entities) == 0 {
		return ""
	}
	return in.Entities[0].Value
}

var umlauts = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
	"ß", "ss",
)

// NormalizeUmlauts rewrites German umlauts to their ASCII digraphs before
// classification, since most NLU training data is ASCII-only.
func NormalizeUmlauts(text string) string {
	return umlauts.Replace(text)
}
