package tusharepro

import (
	"fmt"
	"strconv"
)

// apiRequest is the uniform request body; every API shares one POST
// endpoint and is selected by api_name.
type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params,omitempty"`
	Fields  string            `json:"fields,omitempty"`
}

// apiResponse is the uniform response envelope. A non-zero code carries the
// upstream error in msg.
type apiResponse struct {
	Code int      `json:"code"`
	Msg  string   `json:"msg"`
	Data *apiData `json:"data"`
}

// apiData is the column-oriented payload: field names plus item rows in the
// same order.
type apiData struct {
	Fields []string        `json:"fields"`
	Items  [][]interface{} `json:"items"`
}

// fieldIndex returns the position of the named field, -1 if absent.
func (d *apiData) fieldIndex(name string) int {
	for i, field := range d.Fields {
		if field == name {
			return i
		}
	}
	return -1
}

// cell returns the row's value for the named field as text, empty for
// missing fields and null cells.
func (d *apiData) cell(row []interface{}, name string) string {
	idx := d.fieldIndex(name)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return cellString(row[idx])
}

// cellString renders one JSON cell as text. Numbers use the shortest
// representation so 32000.0 stays "32000".
func cellString(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	}
	return fmt.Sprintf("%v", v)
}

// APIError represents an upstream rejection, either HTTP-level or a
// non-zero envelope code.
type APIError struct {
	APIName string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tushare API error: %s (code: %d, api: %s)", e.Message, e.Code, e.APIName)
}
