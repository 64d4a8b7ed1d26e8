package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"tubesum/internal/api"
	"tubesum/internal/config"
	"tubesum/internal/executor"
	"tubesum/internal/logger"
	"tubesum/internal/service/ai"
	"tubesum/internal/service/pipeline"
	"tubesum/internal/service/transcribe"
	"tubesum/internal/tempfile"
	"tubesum/internal/youtube"
)

type CLI struct {
	Config  string `help:"Path to the JSON config file." env:"TUBESUM_CONFIG"`
	Addr    string `help:"Listen address, overrides basic_config.server_address."`
	EnvFile string `help:"Dotenv file loaded before the config." default:".env"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("tubesum"),
		kong.Description("Summarize YouTube videos from their audio track."),
		kong.UsageOnError(),
	)

	if err := godotenv.Load(cli.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load env file: %v", err)
	}
	if cli.Config == "" {
		cli.Config = os.Getenv("TUBESUM_CONFIG")
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cli.Addr != "" {
		cfg.BasicConfig.ServerAddress = cli.Addr
	}

	appLog := logger.New(cfg.BasicConfig.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files, err := tempfile.NewManager(cfg.BasicConfig.TempDir, cfg.TempFileTTL(), appLog)
	if err != nil {
		log.Fatalf("init temp directory: %v", err)
	}
	files.StartCleaner(ctx, cfg.TempCleanInterval())

	exec := executor.New()
	if _, err := exec.LookPath(cfg.Downloader.BinaryPath); err != nil {
		appLog.Warn(ctx, "yt-dlp not found at %q, downloads will fail: %v", cfg.Downloader.BinaryPath, err)
	}
	downloader := youtube.NewDownloader(cfg.Downloader, exec, appLog)

	transcriber, err := transcribe.New(ctx, cfg, appLog)
	if err != nil {
		log.Fatalf("init transcriber: %v", err)
	}
	chatModel, err := ai.NewChatModel(ctx, cfg)
	if err != nil {
		log.Fatalf("init chat model: %v", err)
	}
	generator := ai.NewGenerator(chatModel, cfg.Generation, appLog)

	summarizer, err := pipeline.New(pipeline.Deps{
		Acquirer:    downloader,
		Transcriber: transcriber,
		Generator:   generator,
		Files:       files,
		Logger:      appLog,
		AudioFormat: downloader.AudioFormat(),
	})
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	handlers := api.NewHandler(summarizer, files, cfg, appLog)
	server := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           api.NewRouter(handlers, cfg.BasicConfig.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLog.Error(shutdownCtx, "shutdown: %v", err)
		}
	}()

	appLog.Info(ctx, "Server running on %s (%s)", server.Addr, cfg.BasicConfig.Environment)
	appLog.Info(ctx, "Temporary directory: %s", files.Dir())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped: %v", err)
	}
	<-idle
	appLog.Info(context.Background(), "Server stopped")
}
