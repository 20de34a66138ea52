package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the documents and settings tables and optionally import a seed file",
	Long: `Creates the documents table on the configured database. With --seed the
given JSON file is imported; its shape is {"<collection>": [{"id": "...", ...}]}.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("seed", "", "JSON file with documents to import")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	defer StopApp()

	if gormStore == nil {
		return fmt.Errorf("migrate needs the gorm document store (DOCSTORE_DRIVER=gorm)")
	}
	logrus.Info("[MIGRATION] Documents and settings tables are up to date")

	seedFile, _ := cmd.Flags().GetString("seed")
	if seedFile == "" {
		return nil
	}
	return importSeed(cmd.Context(), seedFile)
}

func importSeed(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed map[string][]map[string]any
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("invalid seed file: %w", err)
	}

	collections := make([]string, 0, len(seed))
	for c := range seed {
		collections = append(collections, c)
	}
	sort.Strings(collections)

	total := 0
	for _, collection := range collections {
		docs := make([]docstore.Document, 0, len(seed[collection]))
		for _, fields := range seed[collection] {
			id, _ := fields["id"].(string)
			delete(fields, "id")
			docs = append(docs, docstore.Document{ID: id, Fields: fields})
		}
		if _, err := gormStore.WriteMany(ctx, collection, docs); err != nil {
			return fmt.Errorf("failed to import %s: %w", collection, err)
		}
		total += len(docs)
		logrus.Infof("[MIGRATION] Imported %d documents into %s", len(docs), collection)
	}

	logrus.Infof("[MIGRATION] Seed complete: %s documents from %s", humanize.Comma(int64(total)), humanize.Bytes(uint64(len(raw))))
	return nil
}
