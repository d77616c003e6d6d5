/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/cmpc-libros/apiserver/config"
	"github.com/cmpc-libros/apiserver/internal/db"
	"github.com/cmpc-libros/apiserver/internal/services"
	"github.com/cmpc-libros/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// seedCmd represents the seed command.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert sample books into an empty catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		bookService := services.NewBookService(store.NewBookRepository(dbConn), nil)
		inserted, err := bookService.SeedSampleBooks(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("inserted %d sample books\n", inserted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
