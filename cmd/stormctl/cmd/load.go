package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bhumitschaudhry/ConnectStorm/internal/loadtest"
)

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Flood the gateway with generated uploads.",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			files, _ := cmd.Flags().GetInt("files")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			size, _ := cmd.Flags().GetInt("size")
			uploader, _ := cmd.Flags().GetString("uploader")

			report, err := loadtest.Run(cmd.Context(), loadtest.Config{
				URL:           url,
				Files:         files,
				Concurrency:   concurrency,
				FileSizeBytes: size,
				UploaderID:    uploader,
			})
			if err != nil {
				return err
			}
			fmt.Println(report)
			return nil
		},
	}
	cmd.Flags().String("url", "http://localhost:8080", "Base URL of the upload gateway")
	cmd.Flags().Int("files", 100, "Number of files to upload")
	cmd.Flags().Int("concurrency", 8, "Number of uploads in flight at once")
	cmd.Flags().Int("size", 4096, "Size of each generated file in bytes")
	cmd.Flags().String("uploader", "loadtest", "Uploader id attached to every upload")
	return cmd
}
