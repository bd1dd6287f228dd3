package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Akphawee/accessible-library/internal/helper"
	"github.com/Akphawee/accessible-library/internal/models"
	"github.com/Akphawee/accessible-library/internal/speech"
)

var (
	lang       string
	speakOut   string
	speakInput string
)

var askCmd = &cobra.Command{
	Use:   "ask <book-id> <question>",
	Short: "Answer a question about a book",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			answer, err := a.svc.Ask(ctx, args[0], args[1], lang)
			helper.PrettyPrint(answer)
			return err
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <book-id>",
	Short: "Print a book's summary, generating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			if text, err := a.svc.Summary(args[0], lang); err == nil {
				fmt.Println(text)
				return nil
			}
			job, err := a.svc.Summarize(ctx, args[0], lang)
			if err != nil {
				return err
			}
			if err := waitJob(ctx, job); err != nil {
				return err
			}
			text, err := a.svc.Summary(args[0], lang)
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		})
	},
}

var questionsCmd = &cobra.Command{
	Use:   "questions <book-id>",
	Short: "Print a book's question bank, generating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			job, exists, err := a.svc.GenerateQuestionBank(ctx, args[0], lang)
			if err != nil {
				return err
			}
			if !exists {
				if err := waitJob(ctx, job); err != nil {
					return err
				}
			}
			questions, err := a.svc.QuestionBank(args[0], lang)
			if err != nil {
				return err
			}
			helper.PrettyPrint(questions)
			return nil
		})
	},
}

var pageCmd = &cobra.Command{
	Use:   "page <book-id> <page>",
	Short: "Print the text of one page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid page number %q", args[1])
		}
		return withApp(cmd.Context(), func(a *app) error {
			text, total, err := a.svc.Page(args[0], n)
			if err != nil {
				return err
			}
			helper.PrettyPrint(map[string]any{"page": n, "total_pages": total, "text": text})
			return nil
		})
	},
}

var speakCmd = &cobra.Command{
	Use:   "speak [book-id question]",
	Short: "Answer a question aloud, or read --text, writing mp3 audio",
	Args: func(cmd *cobra.Command, args []string) error {
		if speakInput != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text := speech.PlainText(speakInput)
		if speakInput == "" {
			err := withApp(ctx, func(a *app) error {
				answer, err := a.svc.Ask(ctx, args[0], args[1], lang)
				text = answer.Speech
				return err
			})
			if err != nil {
				return err
			}
		}

		audio, err := newSynthesizer(cfg).Synthesize(ctx, text, models.NormalizeLanguage(lang))
		if err != nil {
			return err
		}
		if err := os.WriteFile(speakOut, audio, 0o644); err != nil {
			return err
		}
		fmt.Println(speakOut)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, summaryCmd, questionsCmd, speakCmd} {
		c.Flags().StringVar(&lang, "lang", models.DefaultLanguage, "language tag of the reader, e.g. th-TH")
	}
	speakCmd.Flags().StringVarP(&speakOut, "out", "o", "answer.mp3", "output audio file")
	speakCmd.Flags().StringVar(&speakInput, "text", "", "markdown text to read instead of answering a question")
}
