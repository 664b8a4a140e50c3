package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "nagaralert",
		Short: "Civic issue intake bot and alert broadcaster",
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and background workers",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
