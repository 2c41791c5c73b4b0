package commands

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/smart-voice/internal/app"
	"github.com/benvon/smart-voice/internal/config"
	"github.com/benvon/smart-voice/internal/logger"
	"github.com/benvon/smart-voice/internal/pipeline"
	"github.com/benvon/smart-voice/internal/transcription"
)

// NewProcessCmd creates the process command, which runs a local audio file
// through the pipeline in-process.
func NewProcessCmd() *cobra.Command {
	var user, mimeType, recordingID string
	var dryRun, debug bool
	cmd := &cobra.Command{
		Use:   "process <audio-file>",
		Short: "Run a voice note through the pipeline",
		Long:  "Transcribes and extracts items from a local audio file. With --dry-run (the default) nothing is stored and no background work is scheduled.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(user)
			if err != nil {
				return err
			}
			if mimeType == "" {
				mimeType = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}
			mt, err := transcription.NormalizeMimeType(mimeType)
			if err != nil {
				return fmt.Errorf("%w (use --mime)", err)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}
			if len(data) > transcription.MaxAudioBytes {
				return transcription.ErrAudioTooLarge
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := logger.NewDevelopmentLogger(debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ProcessingWindow+time.Minute)
			defer cancel()
			stores, err := app.OpenStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()
			svc, err := app.BuildServices(ctx, cfg, stores, false, debug, log)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(context.Background()) }()

			req := pipeline.Request{
				UserID:        userID,
				AudioBase64:   base64.StdEncoding.EncodeToString(data),
				MimeType:      mt,
				SkipSaveItems: dryRun,
			}
			if recordingID != "" {
				req.SourceRecordingID = &recordingID
			}
			res, runErr := svc.Pipeline.Process(ctx, req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID to process as (required)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Audio MIME type (defaults to the file extension)")
	cmd.Flags().StringVar(&recordingID, "recording-id", "", "Source recording ID")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "Extract without storing items or scheduling follow-up work")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log LLM requests and responses")
	return cmd
}
