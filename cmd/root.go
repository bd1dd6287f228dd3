package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Akphawee/accessible-library/internal/config"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	cfgFile string
	debug   bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "library",
	Short: "Accessible digital library with question answering over books",
	Long: `library ingests books (PDF, Word, PowerPoint, Excel, plain text), extracts
their text with OCR where the native text is unusable, and answers questions,
writes summaries and builds quizzes from them in the reader's language.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		setupLogger(cfg.LogLevel)
		log.Debug().Str("config", cfgFile).Str("data_dir", cfg.DataDir).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(ingestCmd, scanCmd, deleteCmd, libraryCmd, bookCmd, categoryCmd)
	rootCmd.AddCommand(askCmd, summaryCmd, questionsCmd, pageCmd, speakCmd)
	rootCmd.AddCommand(indexCmd, serveCmd)
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
