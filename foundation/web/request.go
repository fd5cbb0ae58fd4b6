package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dimfeld/httptreemux/v5"
)

// Param returns the web call parameters from the request.
func Param(r *http.Request, key string) string {
	m := httptreemux.ContextParams(r.Context())
	return m[key]
}

// QueryInt returns the integer value of a query string parameter. The
// default is returned when the parameter is missing.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s: %w", key, err)
	}

	return n, nil
}

// Decode reads the body of an HTTP request looking for a JSON document. The
// body is decoded into the provided value. Numbers are kept as json.Number
// so arbitrary payloads don't lose precision.
func Decode(r *http.Request, val any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(val); err != nil {
		return err
	}

	return nil
}
