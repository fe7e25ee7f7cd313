package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func triggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the gateway's embedded consumer to run a cycle now.",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")

			client := &http.Client{Timeout: 10 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url+"/api/trigger-consumer", nil)
			if err != nil {
				return errors.WithStack(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return errors.WithStack(err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if resp.StatusCode != http.StatusOK {
				return errors.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
			}
			fmt.Println(string(body))
			return nil
		},
	}
	cmd.Flags().String("url", "http://localhost:8080", "Base URL of the upload gateway")
	return cmd
}
