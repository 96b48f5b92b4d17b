package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/examlens/constants"
)

// QuestionID identifies a question. On the wire it is either a JSON number
// or a string such as "3b".
type QuestionID string

func (q QuestionID) MarshalJSON() ([]byte, error) {
	s := string(q)
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s && n >= 0 {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (q *QuestionID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return errors.New("question id is null")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return errors.New("question id is empty")
		}
		*q = QuestionID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("question id must be a number or string: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*q = QuestionID(strconv.FormatInt(i, 10))
		return nil
	}
	*q = QuestionID(n.String())
	return nil
}

// Key returns a normalized form used for coverage comparison: lowercase,
// without "question"/"problem"/"q"/"#" prefixes and without leading zeros.
func (q QuestionID) Key() string {
	s := strings.ToLower(strings.TrimSpace(string(q)))
	for _, p := range []string{"question", "problem", "q", "#"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, p))
	}
	s = strings.Trim(s, " .):")
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		n, _ := strconv.Atoi(s[:digits])
		s = strconv.Itoa(n) + s[digits:]
	}
	return s
}

// Base returns the leading question number of the key ("3b" -> "3"), or the
// whole key when it does not start with a digit.
func (q QuestionID) Base() string {
	k := q.Key()
	i := 0
	for i < len(k) && k[i] >= '0' && k[i] <= '9' {
		i++
	}
	if i == 0 {
		return k
	}
	return k[:i]
}

// CategoryRecord is one conceptual topic of an analysis.
type CategoryRecord struct {
	Name             string       `json:"-"`
	QuestionsCovered []QuestionID `json:"Questions Covered"`
	Tips             []string     `json:"Tips and Tricks"`
	Formulas         []string     `json:"Useful Formulas"`
	Summary          string       `json:"Category Summary"`
}

// AnalysisResult is a validated analysis: exactly five distinct categories,
// in the order the backend produced them.
type AnalysisResult struct {
	Categories []CategoryRecord
}

// MarshalJSON emits {"Categories": {"<name>": {...}, ...}} preserving order.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"` + constants.FieldCategories + `":{`)
	for i, c := range r.Categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		if c.QuestionsCovered == nil {
			c.QuestionsCovered = []QuestionID{}
		}
		if c.Tips == nil {
			c.Tips = []string{}
		}
		if c.Formulas == nil {
			c.Formulas = []string{}
		}
		body, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the layout written by MarshalJSON, keeping category order.
// It performs no contract validation; stored documents were validated on write.
func (r *AnalysisResult) UnmarshalJSON(b []byte) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(b, &root); err != nil {
		return err
	}
	raw, ok := root[constants.FieldCategories]
	if !ok {
		return fmt.Errorf("missing %q", constants.FieldCategories)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	var out []CategoryRecord
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var c CategoryRecord
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		c.Name = name
		out = append(out, c)
	}
	r.Categories = out
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// Breakdown is one slice of the topic pie: category name and question count.
type Breakdown struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// Breakdown returns per-category question counts in category order.
func (r AnalysisResult) Breakdown() []Breakdown {
	out := make([]Breakdown, 0, len(r.Categories))
	for _, c := range r.Categories {
		out = append(out, Breakdown{ID: c.Name, Value: len(c.QuestionsCovered)})
	}
	return out
}

// CoveredKeys returns the set of normalized question keys covered by any
// category, including the base number of sub-questions.
func (r AnalysisResult) CoveredKeys() map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range r.Categories {
		for _, q := range c.QuestionsCovered {
			out[q.Key()] = struct{}{}
			out[q.Base()] = struct{}{}
		}
	}
	return out
}
