package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/intake"
	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/setup"
	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/requesttrace"
)

// fileMessage mirrors a queue record. Body may be a JSON string (as delivered by SQS) or an inline object.
type fileMessage struct {
	ID         string            `json:"id"`
	Body       json.RawMessage   `json:"body"`
	Attributes map[string]string `json:"attributes"`
}

// Command runs a batch of messages from a file through the intake processor.
func Command() *cobra.Command {
	var (
		file         string
		storeBackend string
		eventBackend string
	)

	c := &cobra.Command{
		Use:   "replay",
		Short: "Process a batch file of contract messages",
		Long: "Reads a JSON array of {id, body, attributes} records and processes them in order against the configured backends.\n" +
			"Processing stops at the first failing message, as it does for a queue batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open batch file: %w", err)
			}
			defer f.Close()

			messages, err := ReadBatch(f)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(storeBackend, eventBackend)
			if err != nil {
				return err
			}

			logger, err := platformlogging.NewLogger(platformlogging.Config{
				Component: "contracts-cli",
				Service:   cfg.ServiceNamespace,
				Level:     cfg.LogLevel,
				Output:    zapcore.AddSync(cmd.ErrOrStderr()),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()

			backends, err := setup.Build(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("init backends: %w", err)
			}
			defer func() {
				if err := backends.Close(context.Background()); err != nil {
					logger.Error("close backends", zap.Error(err))
				}
			}()

			processor, err := intake.NewProcessor(backends.Service, logger, requesttrace.SourceCLI)
			if err != nil {
				return err
			}

			if err := processor.ProcessBatch(ctx, messages); err != nil {
				return fmt.Errorf("replay stopped: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "processed %d messages\n", len(messages))
			return nil
		},
	}

	c.Flags().StringVar(&file, "file", "", "path to the batch file")
	c.Flags().StringVar(&storeBackend, "store", "", "override STORE_BACKEND (dynamodb, postgres, memory)")
	c.Flags().StringVar(&eventBackend, "events", "", "override EVENT_BACKEND (eventbridge, rabbitmq, log)")
	return c
}

// ReadBatch decodes a batch file into intake messages. Records without an id are numbered by position.
func ReadBatch(r io.Reader) ([]intake.Message, error) {
	var records []fileMessage
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode batch file: %w", err)
	}

	messages := make([]intake.Message, 0, len(records))
	for i, rec := range records {
		id := rec.ID
		if id == "" {
			id = "replay-" + strconv.Itoa(i)
		}
		messages = append(messages, intake.Message{
			ID:         id,
			Body:       bodyText(rec.Body),
			Attributes: rec.Attributes,
		})
	}
	return messages, nil
}

func bodyText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

func loadConfig(storeBackend, eventBackend string) (setup.Config, error) {
	if storeBackend != "" {
		if err := os.Setenv("STORE_BACKEND", storeBackend); err != nil {
			return setup.Config{}, err
		}
	}
	if eventBackend != "" {
		if err := os.Setenv("EVENT_BACKEND", eventBackend); err != nil {
			return setup.Config{}, err
		}
	}
	return setup.LoadConfig()
}
