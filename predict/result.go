package predict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	LabelFake = "FAKE"
	LabelReal = "REAL"
)

// Result is the decoded body of a successful prediction response.
type Result struct {
	Prediction string     `json:"prediction"`
	Confidence Confidence `json:"confidence"`
}

// Confidence is a score the backend may send either as a JSON number or as a
// string. The literal text is kept as received.
type Confidence struct {
	text    string
	numeric bool
}

func NumberConfidence(v float64) Confidence {
	return Confidence{text: strconv.FormatFloat(v, 'f', -1, 64), numeric: true}
}

func TextConfidence(s string) Confidence {
	return Confidence{text: s}
}

func (c Confidence) String() string {
	return c.text
}

// Float returns the numeric value if the confidence parses as a number.
func (c Confidence) Float() (float64, bool) {
	v, err := strconv.ParseFloat(c.text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = Confidence{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Confidence{text: s}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("confidence must be a number or a string: %w", err)
	}
	*c = Confidence{text: n.String(), numeric: true}
	return nil
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	if c.text == "" {
		return []byte("null"), nil
	}
	if c.numeric {
		return []byte(c.text), nil
	}
	return json.Marshal(c.text)
}
