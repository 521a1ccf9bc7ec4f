package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hear.town/config"
	"hear.town/hub"
	"hear.town/metrics"
	"hear.town/session"
	"hear.town/stt"
	"hear.town/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(settingsCmd)

	rootCmd.PersistentFlags().Int("http-port", 7862, "HTTP server port")
	rootCmd.PersistentFlags().
		String("engine-endpoint", "", "Transcription engine URL")
	rootCmd.PersistentFlags().
		String("engine-api-key", "", "Transcription engine API key")

	viper.BindPFlag("http.port", rootCmd.PersistentFlags().Lookup("http-port"))
	viper.BindPFlag(
		"engine.endpoint",
		rootCmd.PersistentFlags().Lookup("engine-endpoint"),
	)
	viper.BindPFlag(
		"engine.api_key",
		rootCmd.PersistentFlags().Lookup("engine-api-key"),
	)
}

func initConfig() {
	config.SetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "hear",
	Short: "Hear is a live speech transcription service",
	Long:  `Hear receives microphone audio over websocket, gates and buffers it, and streams rolling transcripts to listeners.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcription server",
	Run:   runServe,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the effective configuration",
	Run:   runSettings,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger, webLogger, hearLogger, hubLogger := createLoggers()

	cfg, err := config.FromViper()
	if err != nil {
		mainLogger.Fatal("load configuration", "error", err.Error())
	}

	engine, err := stt.NewClient(stt.Config{
		Endpoint:     cfg.Engine.Endpoint,
		APIKey:       cfg.Engine.APIKey,
		Timeout:      cfg.Engine.Timeout,
		OutputFormat: cfg.Engine.OutputFormat,
	}, hearLogger)
	if err != nil {
		mainLogger.Fatal("create engine client", "error", err.Error())
	}

	registry := prometheus.NewRegistry()
	mets := metrics.New(registry)

	bus := hub.New(hubLogger)
	store := session.NewStore(
		cfg.Audio.SampleRate,
		cfg.Audio.MaxBufferSeconds,
		cfg.Decode.MinWindowSeconds,
	)
	ctrl := session.NewController(
		store,
		engine,
		bus,
		cfg.Decode,
		cfg.Audio.SampleRate,
		mets,
		mainLogger,
	)

	handler := web.NewHandler(ctrl, store, bus, cfg, mets, registry, webLogger)

	mainLogger.Info("serving",
		"port", cfg.HTTP.Port,
		"engine", cfg.Engine.Endpoint,
		"sample_rate", cfg.Audio.SampleRate,
	)
	if err := web.Serve(handler, cfg.HTTP.Port); err != nil {
		mainLogger.Fatal("http server", "error", err.Error())
	}
}

func runSettings(cmd *cobra.Command, args []string) {
	cfg, err := config.FromViper()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	apiKey := "(unset)"
	if cfg.Engine.APIKey != "" {
		apiKey = "(set)"
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Value"})
	table.SetBorder(false)
	for _, row := range [][]string{
		{"http.port", fmt.Sprint(cfg.HTTP.Port)},
		{"audio.sample_rate", fmt.Sprint(cfg.Audio.SampleRate)},
		{"audio.default_source_rate", fmt.Sprint(cfg.Audio.DefaultSourceRate)},
		{"audio.max_buffer_seconds", fmt.Sprint(cfg.Audio.MaxBufferSeconds)},
		{"audio.linear_resample", fmt.Sprint(cfg.Audio.LinearResample)},
		{"gate.aggressiveness", fmt.Sprint(cfg.Gate.Aggressiveness)},
		{"gate.frame_millis", fmt.Sprint(cfg.Gate.FrameMillis)},
		{"gate.hangover_millis", fmt.Sprint(cfg.Gate.HangoverMillis)},
		{"decode.window_seconds", fmt.Sprint(cfg.Decode.WindowSeconds)},
		{"decode.step_seconds", fmt.Sprint(cfg.Decode.StepSeconds)},
		{"decode.final_update_seconds", fmt.Sprint(cfg.Decode.FinalUpdateSeconds)},
		{"decode.min_window_seconds", fmt.Sprint(cfg.Decode.MinWindowSeconds)},
		{"decode.min_final_seconds", fmt.Sprint(cfg.Decode.MinFinalSeconds)},
		{"decode.poll_interval", cfg.Decode.PollInterval.String()},
		{"decode.final_overwrite", cfg.Decode.FinalOverwrite},
		{"engine.endpoint", cfg.Engine.Endpoint},
		{"engine.api_key", apiKey},
		{"engine.timeout", cfg.Engine.Timeout.String()},
		{"engine.output_format", cfg.Engine.OutputFormat},
	} {
		table.Append(row)
	}
	table.Render()
}

func createLoggers() (mainLogger, webLogger, hearLogger, hubLogger *log.Logger) {
	logger.SetLevel(log.DebugLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	webLogger = logger.With().WithPrefix("web")
	hearLogger = logger.With().WithPrefix("hear")
	hubLogger = logger.With().WithPrefix("feed")

	return
}
