package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/execution"
	"github.com/ggonzalez94/crosspay/internal/gateway"
	"github.com/ggonzalez94/crosspay/internal/model"
)

type statusReport struct {
	BridgeID          string                `json:"bridge_id"`
	Status            model.CanonicalStatus `json:"status"`
	Progress          int                   `json:"progress"`
	RawProviderStatus string                `json:"raw_provider_status"`
	DestinationTxHash string                `json:"destination_tx_hash,omitempty"`
	Error             string                `json:"error,omitempty"`
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	var bridgeID, txHash string
	var watch bool
	var interval int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the status of a transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				if s.settings.OutputMode == "json" {
					return clierr.New(clierr.ClassValidation, "watch mode is not supported with JSON output")
				}
				return s.watchStatus(bridgeID, txHash, interval)
			}

			ctx, cancel := s.commandContext()
			defer cancel()

			var spin *spinner.Spinner
			if s.settings.OutputMode == "plain" {
				spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				spin.Suffix = " Checking transfer status..."
				spin.Start()
			}
			raw, err := s.gateway.Status(ctx, bridgeID, txHash)
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				return err
			}
			report := buildStatusReport(bridgeID, raw)
			if s.settings.OutputMode == "plain" {
				printStatusReport(report)
				return nil
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report)
		},
	}
	cmd.Flags().StringVar(&bridgeID, "bridge-id", "", "Bridge identifier from execution")
	cmd.Flags().StringVar(&txHash, "tx-hash", "", "Source transaction hash")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch status updates until the transfer settles")
	cmd.Flags().IntVar(&interval, "interval", 5, "Polling interval in seconds (when watching)")
	_ = cmd.MarkFlagRequired("bridge-id")
	return cmd
}

// watchStatus polls until the transfer reaches a terminal status. Poll
// errors are reported but never stop the watch.
func (s *runtimeState) watchStatus(bridgeID, txHash string, interval int) error {
	if interval <= 0 {
		interval = 5
	}
	fmt.Printf("\nWatching transfer (Bridge ID: %s)\n", color.CyanString(bridgeID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", interval)

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		ctx, cancel := s.commandContext()
		raw, err := s.gateway.Status(ctx, bridgeID, txHash)
		cancel()
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			report := buildStatusReport(bridgeID, raw)
			printStatusReport(report)
			if report.Status.Terminal() {
				if report.Status == model.StatusFailed {
					message := report.Error
					if message == "" {
						message = "transfer failed with status " + report.RawProviderStatus
					}
					return clierr.New(clierr.ClassUnknown, message)
				}
				return nil
			}
		}
		<-ticker.C
	}
}

func buildStatusReport(bridgeID string, raw gateway.RawStatus) statusReport {
	status, progress := execution.Canonicalize(raw)
	return statusReport{
		BridgeID:          bridgeID,
		Status:            status,
		Progress:          progress,
		RawProviderStatus: raw.Status,
		DestinationTxHash: raw.DestinationTxHash,
		Error:             raw.Error,
	}
}

func printStatusReport(report statusReport) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    TRANSFER STATUS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Bridge ID: %s\n", color.CyanString(report.BridgeID))
	fmt.Printf("  Status:    %s\n", coloredStatus(report.Status))
	fmt.Printf("  Progress:  %d%%\n", report.Progress)
	if report.RawProviderStatus != "" {
		fmt.Printf("  Provider:  %s\n", report.RawProviderStatus)
	}
	if report.DestinationTxHash != "" {
		fmt.Printf("  Dest Tx:   %s\n", color.HiBlackString(report.DestinationTxHash))
	}
	if report.Error != "" {
		fmt.Printf("  Error:     %s\n", color.RedString(report.Error))
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func coloredStatus(status model.CanonicalStatus) string {
	label := strings.ToUpper(string(status))
	switch status {
	case model.StatusComplete:
		return color.GreenString(label)
	case model.StatusFailed:
		return color.RedString(label)
	case model.StatusPending:
		return color.YellowString(label)
	default:
		return color.CyanString(label)
	}
}
