package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vocabcue/internal/audio"
	"vocabcue/internal/config"
	"vocabcue/internal/content"
	"vocabcue/internal/credentials"
	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
)

func newAudioCmd(configPath *string) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Generate missing word audio into the static directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			library := content.NewLibrary(cfg.ContentSource, &http.Client{Timeout: 15 * time.Second}, logger)
			records, err := library.Records(cmd.Context())
			if err != nil {
				return err
			}

			tts := audio.NewTTSService(filepath.Join(cfg.StaticFilesPath, "audio"), cfg.TTSEndpoint, cfg.TTSLanguage, logger)
			result, err := tts.BatchGenerateAudio(cmd.Context(), records, concurrency)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "generated %d, skipped %d, failed %d\n", len(result.Generated), result.Skipped, len(result.Failed))
			failed := make([]string, 0, len(result.Failed))
			for word := range result.Failed {
				failed = append(failed, word)
			}
			sort.Strings(failed)
			for _, word := range failed {
				fmt.Fprintf(out, "  %s: %v\n", word, result.Failed[word])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel TTS requests")
	return cmd
}

func newCodesCmd(configPath *string) *cobra.Command {
	var (
		length  int
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Mint fresh link codes for every configured group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			groups := experiment.NewGroupResolver(cfg.Groups).Groups()
			codes, err := credentials.GenerateCodes(groups, length, cfg.Groups)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(map[string]map[string]string{"groups": codes})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, string(data))

			sorted := make([]string, 0, len(codes))
			for code := range codes {
				sorted = append(sorted, code)
			}
			sort.Slice(sorted, func(i, j int) bool { return codes[sorted[i]] < codes[sorted[j]] })
			fmt.Fprintln(out)
			for _, code := range sorted {
				fmt.Fprintf(out, "# %-10s %s%s\n", codes[code], strings.TrimRight(baseURL, "/"), experiment.BasePath(code))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&length, "length", credentials.DefaultCodeLength, "code length")
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "public address printed in the links")
	return cmd
}
