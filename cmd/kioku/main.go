// Package main is the Kioku server entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/auth"
	"github.com/hyperjump/kioku/internal/chat"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/llm"
	"github.com/hyperjump/kioku/internal/server"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kioku server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Best-effort: a .env in the working directory supplies OPENAI_API_KEY in development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (retrieval queries, grounding notes, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Chat,
		components.Indexer,
		components.Storage,
		components.KeywordIndex,
		components.VectorIndex,
		components.Authenticator,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" && components.VectorIndex != nil {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Notes            int64  `json:"notes"`
	VectorIndexSize  int    `json:"vector_index_size"`
	VectorIndexType  string `json:"vector_index_type"`
	KeywordIndexSize uint64 `json:"keyword_index_size,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	token := fs.String("token", os.Getenv("KIOKU_API_TOKEN"), "API bearer token (default from KIOKU_API_TOKEN)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL, *token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("notes:               %d   # count of stored notes\n", status.Notes)
		fmt.Printf("vector_index_size:   %d   # count of vectors in semantic index\n", status.VectorIndexSize)
		fmt.Printf("vector_index_type:   %s\n", status.VectorIndexType)
		if status.KeywordIndexSize > 0 {
			fmt.Printf("keyword_index_size:  %d\n", status.KeywordIndexSize)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL, token string) (*statusResponse, error) {
	req, err := http.NewRequest(http.MethodGet, serverURL+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage       storage.Storage
	Embedder      embedding.Embedder
	VectorIndex   vector.VectorIndex
	KeywordIndex  keyword.KeywordIndex
	Completer     llm.Completer
	Chat          *chat.Service
	Indexer       *indexer.Indexer
	Authenticator auth.Authenticator
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Completer != nil {
		_ = c.Completer.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.OpenAI.APIKey != "" {
		embedder = embedding.NewOpenAIEmbedder(&cfg.OpenAI)
	} else {
		// Without an API key the server still runs end to end against the mock
		// embedder; completions will fail, but note CRUD and retrieval work.
		logger.Warn("no OpenAI API key configured, using mock embedder")
		embedder = embedding.NewMockEmbedder(cfg.OpenAI.EmbeddingDimensions)
	}

	vectorIndex, err := vector.NewVectorIndex(&cfg.Vector, cfg.OpenAI.EmbeddingDimensions)
	if err != nil {
		// Fall back to memory index if the configured type fails (e.g., Chroma unreachable).
		if cfg.Vector.IndexType != string(vector.IndexTypeMemory) && cfg.Vector.IndexType != "" {
			logger.Warn("failed to create vector index, falling back to memory",
				zap.String("requested_type", cfg.Vector.IndexType),
				zap.Error(err))
			memCfg := cfg.Vector
			memCfg.IndexType = string(vector.IndexTypeMemory)
			vectorIndex, err = vector.NewVectorIndex(&memCfg, cfg.OpenAI.EmbeddingDimensions)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized",
		zap.String("type", vectorIndex.Type()),
		zap.Int("size", vectorIndex.Size()))

	var keywordIndex keyword.KeywordIndex
	if cfg.Storage.BleveIndexPath != "" {
		keywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
	}

	completer := llm.NewOpenAICompleter(&cfg.OpenAI)

	chatOpts := []chat.ServiceOption{}
	idxOpts := []indexer.IndexerOption{}
	if debug {
		chatOpts = append(chatOpts, chat.WithLogger(logger))
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	chatSvc := chat.NewService(store, embedder, vectorIndex, completer, &cfg.Chat, chatOpts...)
	idx := indexer.NewIndexer(store, embedder, vectorIndex, keywordIndex, idxOpts...)

	return &Components{
		Storage:       store,
		Embedder:      embedder,
		VectorIndex:   vectorIndex,
		KeywordIndex:  keywordIndex,
		Completer:     completer,
		Chat:          chatSvc,
		Indexer:       idx,
		Authenticator: auth.NewStaticTokenAuthenticator(cfg.Auth.Tokens),
	}, nil
}

func printUsage() {
	fmt.Println(`kioku - Note-taking server with retrieval-grounded chat

Usage:
  kioku server [flags]    Start the HTTP server
  kioku status [flags]    Show note/index status
  kioku version           Show version
  kioku help              Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kioku/config.yaml)
  --debug            Enable debug logging (retrieval queries, grounding notes, etc.)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --token string     API bearer token (default from KIOKU_API_TOKEN)
  --output string    Output format: text or json (default: text)

Examples:
  kioku server
  kioku server --debug
  kioku status --token my-api-token
  kioku status --output json`)
}
