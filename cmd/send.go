package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"wormhole/internal/app"
	"wormhole/internal/config"
)

type SendFlags struct {
	FilePath string
	Text     string
}

var sendFlags SendFlags

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a file or text message",
	Long: `Send a file or a short text message. This will:

1. Allocate a wormhole code and print it
2. Wait for the receiver to enter the code
3. Verify both sides used the same code
4. Stream the payload and wait for the receiver to confirm it

Use --file to send a file or --text to send a message.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateSendFlags(&sendFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSenderApp(cmd, &sendFlags)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendFlags.FilePath, "file", "f", "", "Path to file to send")
	sendCmd.Flags().StringVarP(&sendFlags.Text, "text", "t", "", "Text message to send instead of a file")
	sendCmd.MarkFlagsMutuallyExclusive("file", "text")
	sendCmd.Flags().Bool("compress", false, "Compress chunks with LZ4")
	sendCmd.Flags().Int("chunk-size", config.DefaultChunkSize, "Chunk size in bytes")
	sendCmd.Flags().Bool("checksum", true, "Announce a SHA-256 checksum the receiver verifies")

	bindFlags(sendCmd, map[string]string{
		config.KeyCompress:  "compress",
		config.KeyChunkSize: "chunk-size",
		config.KeyChecksum:  "checksum",
	})
}

func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

// validateSendFlags validates the send command flags
func validateSendFlags(flags *SendFlags) error {
	if flags.FilePath == "" && flags.Text == "" {
		return errors.New("either --file or --text is required")
	}
	return nil
}

// runSenderApp creates and runs the sender application
func runSenderApp(cmd *cobra.Command, flags *SendFlags) error {
	ctx := cmd.Context()
	svc, err := createServices(ctx)
	if err != nil {
		return err
	}
	defer svc.close()

	opts := &app.SenderOptions{
		FilePath: flags.FilePath,
		Text:     flags.Text,
	}

	senderApp := app.NewSenderApp(cfg, svc.orchestrator, svc.files, svc.ui, svc.history, log)
	_, err = senderApp.Run(ctx, opts)
	return err
}
