package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"quiz-gateway/internal/notify"
)

// NewNotifyCmd pushes an ad hoc payload to one live connection through a gateway's side channel.
func NewNotifyCmd() *cobra.Command {
	var baseURL, connID, data string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a notification to a live connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--data must be valid JSON")
			}
			client := notify.NewClient(baseURL, timeout)
			if err := client.Send(cmd.Context(), connID, json.RawMessage(data)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delivered")
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "gateway base URL")
	cmd.Flags().StringVar(&connID, "conn", "", "target connection id")
	cmd.Flags().StringVar(&data, "data", "{}", "JSON payload")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("conn")
	return cmd
}
