package cmd

import (
	"github.com/spf13/cobra"

	"wormhole/internal/app"
	"wormhole/pkg/utils"
)

type ReceiveFlags struct {
	DstPath   string
	Overwrite bool
}

var receiveFlags ReceiveFlags

// receiveCmd represents the receive command
var receiveCmd = &cobra.Command{
	Use:   "receive [code]",
	Short: "Receive a file or text message",
	Long: `Receive a file or text message announced under a wormhole code. This will:

1. Ask for the code unless it was given as argument
2. Verify both sides used the same code
3. Receive the payload and check its size and checksum
4. Save files to --dst (the current directory by default) and print text

Existing files are never replaced unless --overwrite is given.`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateReceiveFlags(&receiveFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var code string
		if len(args) == 1 {
			code = args[0]
		}
		return runReceiverApp(cmd, code, &receiveFlags)
	},
}

// validateReceiveFlags validates the receive command flags before connecting
func validateReceiveFlags(flags *ReceiveFlags) error {
	_, err := utils.ResolveDestinationDir(flags.DstPath)
	return err
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVarP(&receiveFlags.DstPath, "dst", "d", "", "Directory to save received files in")
	receiveCmd.Flags().BoolVar(&receiveFlags.Overwrite, "overwrite", false, "Replace an existing file with the same name")
}

// runReceiverApp creates and runs the receiver application
func runReceiverApp(cmd *cobra.Command, code string, flags *ReceiveFlags) error {
	ctx := cmd.Context()
	svc, err := createServices(ctx)
	if err != nil {
		return err
	}
	defer svc.close()

	opts := &app.ReceiverOptions{
		Code:      code,
		DestPath:  flags.DstPath,
		Overwrite: flags.Overwrite,
	}

	receiverApp := app.NewReceiverApp(cfg, svc.orchestrator, svc.files, svc.ui, svc.history, log)
	_, err = receiverApp.Run(ctx, opts)
	return err
}
