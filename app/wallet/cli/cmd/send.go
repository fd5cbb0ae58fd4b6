package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var (
	sendType    string
	sendFrom    string
	sendTo      string
	sendAmount  string
	sendFee     string
	sendPayload []string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit a transaction to the pool",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendType, "type", "t", "transfer", "Transaction type.")
	sendCmd.Flags().StringVarP(&sendFrom, "from", "f", "", "Sender address.")
	sendCmd.Flags().StringVarP(&sendTo, "to", "r", "", "Recipient address.")
	sendCmd.Flags().StringVarP(&sendAmount, "amount", "v", "0", "Amount to move.")
	sendCmd.Flags().StringVar(&sendFee, "fee", "", "Gas fee, the node default is used when empty.")
	sendCmd.Flags().StringSliceVarP(&sendPayload, "payload", "d", nil, "Payload entries as key=value.")
}

func sendRun(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(sendPayload)
	if err != nil {
		return err
	}

	tx := map[string]any{
		"type":      sendType,
		"sender":    sendFrom,
		"recipient": sendTo,
		"amount":    json.Number(sendAmount),
		"payload":   payload,
	}
	if sendFee != "" {
		tx["gas_fee"] = json.Number(sendFee)
	}

	var result map[string]any
	if err := call(newClient(), http.MethodPost, "/v1/tx/submit", tx, &result); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), result)
}

// parsePayload turns key=value pairs into a payload document. Values that
// are valid JSON keep their type, anything else is kept as text.
func parsePayload(pairs []string) (map[string]any, error) {
	payload := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("payload entry %q is not key=value", pair)
		}

		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = v
		}
		payload[k] = val
	}

	return payload, nil
}
