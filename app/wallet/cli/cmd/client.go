package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/viper"
)

// apiError is the error document returned by the node.
type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// String renders the error with its field problems in a stable order.
func (ae apiError) String() string {
	if len(ae.Fields) == 0 {
		return ae.Error
	}

	keys := make([]string, 0, len(ae.Fields))
	for k := range ae.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + ae.Fields[k]
	}

	return fmt.Sprintf("%s (%s)", ae.Error, strings.Join(parts, ", "))
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(viper.GetString("url"), "/")).
		SetTimeout(viper.GetDuration("timeout")).
		SetHeader("Accept", "application/json")
}

// call performs the request and decodes a successful response into result.
// Responses with a status of 400 or higher are turned into errors carrying
// the node's message.
func call(client *resty.Client, method string, path string, body any, result any) error {
	var ae apiError

	req := client.R().SetError(&ae)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() {
		if ae.Error == "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode(), ae)
	}

	return nil
}

// printJSON writes the value to w honoring the pretty flag.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if viper.GetBool("pretty") {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
