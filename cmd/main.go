package main

import (
	"errors"
	"os"

	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env 中的密钥先于配置文件加载，供 ${ENV} 展开使用
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		log := logger.Default()
		if errors.Is(err, vectordb.ErrIndexEmpty) {
			log.WithError(err).Error("No content to index, check corpus.csv_path and corpus.pdf_dir")
		} else {
			log.WithError(err).Error("Command failed")
		}
		os.Exit(1)
	}
}

// newRootCmd 创建根命令
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "advisor",
		Short:         "Retrieval-augmented product advisor for AXA Philippines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Config file path")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newChatCmd(&configPath),
		newIndexCmd(&configPath),
		newExportCmd(&configPath),
		newInitCmd(&configPath),
	)
	return rootCmd
}
