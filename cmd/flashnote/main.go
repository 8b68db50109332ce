package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Xperiamol/FlashNote-sub001/internal/config"
	"github.com/Xperiamol/FlashNote-sub001/internal/db"
	"github.com/Xperiamol/FlashNote-sub001/internal/store"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flashnote",
		Short: "FlashNote persistence inspector",
		Long: `Flashnote manages the local FlashNote store: plain notes and
whiteboard scenes persisted by the editor, plus their externalized
binary assets.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("flashnote %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize flashnote config and database",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK        bool   `json:"ok"`
				Message   string `json:"message,omitempty"`
				ConfigDir string `json:"config_dir,omitempty"`
				DataDir   string `json:"data_dir,omitempty"`
				DBPath    string `json:"db_path,omitempty"`
			}

			configDir, err := config.GetConfigDir()
			if err != nil {
				fail(fmt.Sprintf("Failed to get config directory: %v", err))
			}
			dataDir, err := resolveDataDir()
			if err != nil {
				fail(fmt.Sprintf("Failed to get data directory: %v", err))
			}
			if err := os.MkdirAll(configDir, 0755); err != nil {
				fail(fmt.Sprintf("Failed to create config directory: %v", err))
			}
			if err := os.MkdirAll(filepath.Join(dataDir, "assets"), 0755); err != nil {
				fail(fmt.Sprintf("Failed to create data directory: %v", err))
			}

			dbPath := filepath.Join(dataDir, "flashnote.db")
			if err := db.Init(dbPath); err != nil {
				fail(fmt.Sprintf("Failed to initialize database: %v", err))
			}

			result := Result{
				OK:        true,
				Message:   "FlashNote store initialized successfully",
				ConfigDir: configDir,
				DataDir:   dataDir,
				DBPath:    dbPath,
			}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config directory: %s\n", result.ConfigDir)
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Printf("✓ Database: %s\n", result.DBPath)
			}
		},
	})

	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Inspect stored documents",
	}

	docsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Run: func(cmd *cobra.Command, args []string) {
			type DocInfo struct {
				ID        string `json:"id"`
				Kind      string `json:"kind"`
				Title     string `json:"title,omitempty"`
				Hash      string `json:"content_hash"`
				UpdatedAt string `json:"updated_at"`
			}

			database := openDB()
			defer database.Close()

			rows, err := database.Query(`
				SELECT id, kind, title, content_hash, updated_at
				FROM documents
				ORDER BY updated_at DESC
			`)
			if err != nil {
				fail(fmt.Sprintf("Failed to query documents: %v", err))
			}
			defer rows.Close()

			var docs []DocInfo
			for rows.Next() {
				var d DocInfo
				var title sql.NullString
				var updatedAt int64
				if err := rows.Scan(&d.ID, &d.Kind, &title, &d.Hash, &updatedAt); err != nil {
					fail(fmt.Sprintf("Failed to scan document: %v", err))
				}
				if title.Valid {
					d.Title = title.String
				}
				d.UpdatedAt = time.Unix(updatedAt, 0).Format(time.RFC3339)
				docs = append(docs, d)
			}
			if err := rows.Err(); err != nil {
				fail(fmt.Sprintf("Failed to read documents: %v", err))
			}

			if jsonOutput {
				printJSON(docs)
			} else {
				for _, d := range docs {
					fmt.Printf("%-40s %-11s %-24s %s\n", d.ID, d.Kind, d.Title, d.UpdatedAt)
				}
				if len(docs) == 0 {
					fmt.Println("No documents stored")
				}
			}
		},
	})

	docsCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored document's canonical content",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			database := openDB()
			defer database.Close()

			st, err := store.NewSQLiteStore(database).Read(context.Background(), args[0])
			if err != nil {
				fail(fmt.Sprintf("Failed to read document: %v", err))
			}

			if jsonOutput {
				printJSON(map[string]any{
					"id":           st.DocumentID,
					"kind":         string(st.Kind),
					"title":        st.Title,
					"content":      st.Canonical,
					"content_hash": st.ContentHash,
					"updated_at":   st.UpdatedAt.Format(time.RFC3339),
				})
			} else {
				fmt.Printf("ID:      %s\nKind:    %s\nTitle:   %s\nUpdated: %s\n\n%s\n",
					st.DocumentID, st.Kind, st.Title, st.UpdatedAt.Format(time.RFC3339), st.Canonical)
			}
		},
	})

	rootCmd.AddCommand(docsCmd)

	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect externalized assets",
	}

	assetsCmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List stored assets",
		Run: func(cmd *cobra.Command, args []string) {
			type AssetInfo struct {
				ID        string `json:"id"`
				MimeType  string `json:"mime_type"`
				SizeBytes int64  `json:"size_bytes"`
				CreatedAt string `json:"created_at"`
			}

			database := openDB()
			defer database.Close()

			rows, err := database.Query(`
				SELECT id, mime_type, size_bytes, created_at
				FROM assets
				ORDER BY created_at DESC
			`)
			if err != nil {
				fail(fmt.Sprintf("Failed to query assets: %v", err))
			}
			defer rows.Close()

			var list []AssetInfo
			for rows.Next() {
				var a AssetInfo
				var createdAt int64
				if err := rows.Scan(&a.ID, &a.MimeType, &a.SizeBytes, &createdAt); err != nil {
					fail(fmt.Sprintf("Failed to scan asset: %v", err))
				}
				a.CreatedAt = time.Unix(createdAt, 0).Format(time.RFC3339)
				list = append(list, a)
			}
			if err := rows.Err(); err != nil {
				fail(fmt.Sprintf("Failed to read assets: %v", err))
			}

			if jsonOutput {
				printJSON(list)
			} else {
				for _, a := range list {
					fmt.Printf("%-44s %-16s %8d  %s\n", a.ID, a.MimeType, a.SizeBytes, a.CreatedAt)
				}
				if len(list) == 0 {
					fmt.Println("No assets stored")
				}
			}
		},
	})

	rootCmd.AddCommand(assetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveDataDir() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return config.GetDataDir()
}

func openDB() *sql.DB {
	dir, err := resolveDataDir()
	if err != nil {
		fail(fmt.Sprintf("Failed to get data directory: %v", err))
	}
	database, err := db.Open(filepath.Join(dir, "flashnote.db"))
	if err != nil {
		fail(fmt.Sprintf("Failed to open database: %v", err))
	}
	return database
}

func fail(message string) {
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "message": message})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	}
	os.Exit(1)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
