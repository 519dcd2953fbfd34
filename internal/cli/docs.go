package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/pipeline"
)

// docsCmd represents the docs command
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := pipeline.New(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ids, err := p.DocumentIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>...",
	Short: "Remove documents from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := pipeline.New(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, id := range args {
			if err := p.DeleteDocument(ctx, id); err != nil {
				return err
			}
			if verbose {
				fmt.Printf("deleted %s\n", id)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(deleteCmd)
}
