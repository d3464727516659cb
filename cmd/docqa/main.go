// Command docqa runs the multilingual document-QA assistant server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/becomeliminal/docqa/assistant"
	"github.com/becomeliminal/docqa/config"
	"github.com/becomeliminal/docqa/conversation"
	"github.com/becomeliminal/docqa/embedder"
	"github.com/becomeliminal/docqa/embedder/mock"
	"github.com/becomeliminal/docqa/embedder/onnx"
	"github.com/becomeliminal/docqa/extract"
	"github.com/becomeliminal/docqa/llm"
	"github.com/becomeliminal/docqa/memory"
	"github.com/becomeliminal/docqa/pkg/logger"
	"github.com/becomeliminal/docqa/retrieval"
	"github.com/becomeliminal/docqa/server"
	"github.com/becomeliminal/docqa/speech"
	"github.com/becomeliminal/docqa/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := sqlite.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer store.Close()

	emb, closeEmb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	defer closeEmb()

	retrievalStore, err := retrieval.NewStore(
		filepath.Join(cfg.Storage.DataDir, "partitions"), emb.Dimensions(), log)
	if err != nil {
		return fmt.Errorf("init retrieval store: %w", err)
	}

	llmClient, err := llm.New(llm.Config{
		APIKey:    cfg.LLM.APIKey(),
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	}, log)
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}

	if err := extract.CheckAvailable(); err != nil {
		log.Warn("pdf extraction unavailable", "error", err)
	}

	var transcriber assistant.Transcriber
	if cfg.Speech.Enabled {
		sc, err := speech.New(context.Background(), speech.Config{
			LanguageCode:             cfg.Speech.LanguageCode,
			AlternativeLanguageCodes: cfg.Speech.AlternativeLanguageCodes,
		}, log)
		if err != nil {
			return fmt.Errorf("init speech client: %w", err)
		}
		defer sc.Close()
		transcriber = sc
	}

	convManager := conversation.NewManager(store, llmClient, nil, log)

	asst := assistant.New(assistant.Deps{
		Retrieval:    retrievalStore,
		Conversation: convManager,
		Memory:       memory.NewManager(store, llmClient),
		Embedder:     emb,
		Translator:   llmClient,
		Generator:    llmClient,
		Extractor:    extract.NewPDF(),
		Transcriber:  transcriber,
		Log:          log,
	})

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		Mode:      cfg.Server.Mode,
		UploadDir: filepath.Join(cfg.Storage.DataDir, "uploads"),
	}, asst, convManager, log)

	return srv.Run()
}

// buildEmbedder selects the embedder implementation and wraps it in the
// read-through cache.
func buildEmbedder(cfg config.EmbedderConfig) (embedder.Embedder, func(), error) {
	closeInner := func() {}
	var inner embedder.Embedder
	switch cfg.Type {
	case "onnx":
		e, err := onnx.New(onnx.Config{
			ModelPath:         cfg.ModelPath,
			TokenizerPath:     cfg.TokenizerPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			Dimensions:        cfg.Dimensions,
		})
		if err != nil {
			return nil, nil, err
		}
		inner = e
		closeInner = func() { _ = e.Close() }
	case "mock", "":
		inner = mock.NewWithDimensions(cfg.Dimensions)
	default:
		return nil, nil, fmt.Errorf("unknown embedder type %q", cfg.Type)
	}

	cached, err := embedder.NewCached(inner, cfg.CacheBytes)
	if err != nil {
		closeInner()
		return nil, nil, err
	}
	return cached, func() {
		cached.Close()
		closeInner()
	}, nil
}
