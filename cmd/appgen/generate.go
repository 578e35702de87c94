package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/appgen/internal/client"
	"github.com/suPer8Hu/appgen/internal/stream"
)

var (
	genServer     string
	genModel      string
	genQuality    string
	genScreenshot string
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Create a chat and stream the first generated app",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		api := client.New(genServer)
		res, err := api.CreateChat(ctx, client.CreateChatRequest{
			Prompt:        strings.Join(args, " "),
			Model:         genModel,
			Quality:       genQuality,
			ScreenshotURL: genScreenshot,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "chat %s\n", res.ChatID)

		body, err := api.StreamCompletion(ctx, res.LastMessageID, genModel)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		consumer := &stream.Consumer{
			OnFragment: func(frag string) { fmt.Fprint(out, frag) },
			OnView: func(v stream.View) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[switch to %s view]\n", v)
			},
		}
		if _, err := consumer.Consume(ctx, body); err != nil {
			return err
		}
		fmt.Fprintln(out)
		if id := body.AssistantID(); id != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "stored assistant message %s\n", id)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&genServer, "server", "http://localhost:8080", "appgen API base URL")
	generateCmd.Flags().StringVarP(&genModel, "model", "m", "meta-llama/Llama-3.3-70B-Instruct-Turbo", "model id")
	generateCmd.Flags().StringVarP(&genQuality, "quality", "q", "low", "high or low")
	generateCmd.Flags().StringVar(&genScreenshot, "screenshot", "", "reference screenshot URL")
	rootCmd.AddCommand(generateCmd)
}
