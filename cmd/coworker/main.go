// Coworker - a voice-driven virtual colleague that books meetings and looks
// up colleagues during a live conversation.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-coworker/internal/config"
	"github.com/teslashibe/go-coworker/internal/log"
	"github.com/teslashibe/go-coworker/pkg/audioio"
	"github.com/teslashibe/go-coworker/pkg/coworker"
)

func main() {
	envFile := flag.String("env", config.DefaultEnvFile, "dotenv file to load")
	cfg := parseFlags()

	envErr := config.LoadEnv(*envFile)

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log.Init(config.String("LOG_LEVEL", level))
	logger := log.Component("main")

	if envErr != nil {
		logger.Error("failed to load environment", "error", envErr)
		os.Exit(1)
	}
	cfg.LoadEnvConfig()

	app, err := coworker.New(cfg, coworker.WithLogger(log.L()))
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	logger.Info("coworker ready", "port", cfg.Port, "terminal", cfg.Terminal)
	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags parses command line flags into a configuration. Environment
// variables are applied afterwards.
func parseFlags() coworker.Config {
	cfg := coworker.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", cfg.Port, "HTTP port for the operator UI")
	noWeb := flag.Bool("no-web", false, "Disable the operator UI")
	static := flag.String("static", "", "Directory of static UI files")
	terminal := flag.Bool("terminal", false, "Run one session reading operator lines from stdin")
	noLogin := flag.Bool("no-login", false, "Disable the login gate")
	noPrelude := flag.Bool("no-prelude", false, "Skip the recording prelude")
	noMic := flag.Bool("no-mic", false, "Do not stream the microphone into the session")
	audioOut := flag.Bool("audio", false, "Play the assistant's voice through -wav-player")
	backend := flag.String("audio-backend", string(cfg.AudioBackend), "Audio backend: auto, malgo, mock")
	record := flag.Duration("record", cfg.RecordDuration, "Prelude recording length")
	player := flag.String("player", cfg.Player, "Command that plays MP3 from stdin")
	wavPlayer := flag.String("wav-player", cfg.WAVPlayer, "Command that plays WAV from stdin")
	prompt := flag.String("system-prompt", cfg.SystemPrompt, "System prompt for the assistant")
	tokenPath := flag.String("calendar-token", "", "Path of the saved calendar token")
	flag.Parse()

	cfg.Debug = *debug
	cfg.Port = *port
	cfg.Web = !*noWeb
	cfg.StaticDir = *static
	cfg.Terminal = *terminal
	cfg.RequireLogin = !*noLogin
	cfg.Prelude = !*noPrelude
	cfg.StreamMicrophone = !*noMic
	cfg.EnableAudio = *audioOut
	cfg.AudioBackend = audioio.Backend(*backend)
	cfg.RecordDuration = *record
	cfg.Player = *player
	cfg.WAVPlayer = *wavPlayer
	cfg.SystemPrompt = *prompt
	cfg.CalendarTokenPath = *tokenPath
	return cfg
}
