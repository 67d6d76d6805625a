package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"smartindex/config"
	"smartindex/internal/adapter/extract"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default smartindex.yaml into the corpus root",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(initCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, err := openSession(ctx, GetRootDir(), GetConfig())
	if err != nil {
		return err
	}
	defer sess.Close()

	stats, err := sess.retriever.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	if statsJSON {
		output, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Ready:     %v\n", stats.Ready)
	fmt.Printf("Model:     %s (%d dimensions)\n", stats.Model, stats.Dimension)
	fmt.Printf("Backend:   %s\n", GetConfig().Store.Backend)
	if err := sess.checkReadable(); err != nil {
		fmt.Printf("Warning:   %v\n", err)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(GetRootDir(), "smartindex.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	if !extract.OCRAvailable() {
		fmt.Println("Note: tesseract was not found, so .png/.jpg/.jpeg files will be skipped as unsupported.")
		fmt.Println("      Install tesseract or set ocr.enabled to index images.")
	}
	return nil
}
