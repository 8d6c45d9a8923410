package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/services"
	"rag-chatbot-backend/utils"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: ingest <command>")
		fmt.Println("Commands:")
		fmt.Println("  rebuild  - Rebuild the vector index from DATA_DIR and persist it")
		fmt.Println("  verify   - Load the persisted index and print its size")
		fmt.Println("  files    - List the files in DATA_DIR with their fingerprints")
		os.Exit(1)
	}
	command := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()
	ld, err := services.NewLoader(cfg)
	if err != nil {
		log.Fatalf("Failed to create document loader: %v", err)
	}

	if command == "files" {
		paths, err := ld.Scan(cfg.DataDir)
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		for _, p := range paths {
			sum, err := utils.FingerprintFile(p)
			if err != nil {
				fmt.Printf("%s\terror: %v\n", p, err)
				continue
			}
			fmt.Printf("%s\t%s\n", sum, p)
		}
		return
	}

	embedder, err := ai.NewEmbedder(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	store, err := services.NewStore(cfg, embedder, nil)
	if err != nil {
		log.Fatalf("Failed to create vector index: %v", err)
	}

	switch command {
	case "rebuild":
		if err := services.Rebuild(ctx, store, ld, cfg.DataDir); err != nil {
			log.Fatalf("Rebuild failed: %v", err)
		}
		fmt.Printf("Index rebuilt: %d records, %d dimensions\n", store.Len(), store.Dimensions())

	case "verify":
		if err := store.Load(ctx); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		fmt.Printf("Index OK: %d records, %d dimensions (%s backend)\n", store.Len(), store.Dimensions(), cfg.VectorBackend)

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
