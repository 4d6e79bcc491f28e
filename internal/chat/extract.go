package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ExtractPayload parses the span between the first '{' and the last '}' of
// text. Text without such a span yields (nil, nil). Several objects, or braces
// in the surrounding prose, are not told apart: the whole outer span is
// parsed and a parse failure is returned as an error. Numbers are kept as
// json.Number so large integers reach the query backend unchanged.
func ExtractPayload(text string) (Payload, error) {
	if !strings.Contains(text, "{") {
		return nil, nil
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if last <= first {
		return nil, nil
	}

	decoder := json.NewDecoder(strings.NewReader(text[first : last+1]))
	decoder.UseNumber()
	var payload Payload
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode embedded payload: %w", err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode embedded payload: unexpected data after object")
	}
	return payload, nil
}
