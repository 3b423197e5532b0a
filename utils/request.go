package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"travel-backoffice/errors"
)

const maxBodyBytes = 1 << 20

// DecodeJSONRequest decodes JSON from HTTP request body into the provided interface.
// Usage: var data MyType; if err := DecodeJSONRequest(r, &data); err != nil { ... }
func DecodeJSONRequest(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.E(errors.Invalid, "invalid JSON body", err)
	}
	return nil
}

// ReadBody returns the raw request body, capped at 1 MiB.
func ReadBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.E(errors.Invalid, "failed to read request body", err)
	}
	return body, nil
}

// FlexibleID accepts an id sent either as a JSON number or as a numeric string. Browsers
// frequently send ids read from query strings as strings.
type FlexibleID int64

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*id = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*id = FlexibleID(n)
	return nil
}

// ParseIDParam reads a positive integer query parameter.
func ParseIDParam(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, errors.NewInvalidParamsError(fmt.Sprintf("missing %s parameter", name))
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidParamsError(fmt.Sprintf("invalid %s parameter", name))
	}
	return id, nil
}
