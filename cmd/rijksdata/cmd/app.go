package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/config"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/dbutil"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/iconclass"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/linkedart"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/logger"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/oai"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/semantic"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/vocabulary"
)

// app bundles the five engines plus the database handles they were opened
// from, built once per CLI invocation from the loaded config. Each
// subcommand gets exactly the engine it needs out of this struct rather
// than re-deriving configuration itself.
type app struct {
	cfg *config.Config

	// invocationID correlates every log line emitted during this CLI run.
	invocationID string

	vocabularyDB *sql.DB
	embeddingsDB *sql.DB
	iconclassDB  *sql.DB

	vocab     *vocabulary.Engine
	semantic  *semantic.Engine
	iconclass *iconclass.Engine
	linkedArt *linkedart.Client
	oaiClient *oai.Client
}

// newApp loads configuration and opens whichever indexes are present on
// disk; a missing index degrades its engine to IndexUnavailable rather
// than failing the whole process.
func newApp(ctx context.Context, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.Init()

	a := &app{cfg: cfg, invocationID: uuid.NewString()}

	if db, err := dbutil.Open(cfg.Indexes.VocabularyPath); err == nil {
		a.vocabularyDB = db
		a.vocab = vocabulary.Open(ctx, db)
	} else {
		fmt.Printf("warning: vocabulary index unavailable (%v); structured search disabled\n", err)
		logger.Warn("vocabulary index unavailable", "invocation_id", a.invocationID, "error", err)
	}

	if db, err := dbutil.Open(cfg.Indexes.EmbeddingsPath); err == nil {
		a.embeddingsDB = db
	} else {
		fmt.Printf("warning: embeddings index unavailable (%v); semantic search disabled\n", err)
		logger.Warn("embeddings index unavailable", "invocation_id", a.invocationID, "error", err)
	}

	if db, err := dbutil.Open(cfg.Indexes.IconclassPath); err == nil {
		a.iconclassDB = db
		a.iconclass = iconclass.Open(ctx, db, cfg.Semantic.Dimensions)
	} else {
		fmt.Printf("warning: iconclass index unavailable (%v); notation browsing disabled\n", err)
		logger.Warn("iconclass index unavailable", "invocation_id", a.invocationID, "error", err)
	}

	var embedder core.QueryEmbedder
	if cfg.Semantic.ModelPath != "" {
		e, err := semantic.LoadHashingEmbedder(cfg.Semantic.ModelPath, cfg.Semantic.Dimensions, cfg.Semantic.QueryPrefix)
		if err != nil {
			fmt.Printf("warning: embedding model failed to load (%v); semantic search disabled\n", err)
			logger.Warn("embedding model failed to load", "invocation_id", a.invocationID, "error", err)
		} else {
			embedder = e
		}
	}
	if a.embeddingsDB != nil && a.vocab != nil {
		a.semantic = semantic.Open(ctx, a.embeddingsDB, embedder, a.vocab, semantic.Config{
			Dims:                 cfg.Semantic.Dimensions,
			FilteredKNNThreshold: cfg.Semantic.FilteredKNNThreshold,
			PureKNNMaxK:          cfg.Semantic.PureKNNMaxK,
		})
	}

	a.linkedArt = linkedart.New(linkedart.Config{
		BaseURL:         cfg.LinkedArt.BaseURL,
		Timeout:         cfg.LinkedArt.Timeout,
		MaxConnsPerHost: cfg.LinkedArt.MaxConnsPerHost,
		CacheCapacity:   cfg.LinkedArt.CacheCapacity,
		ObjectTTL:       cfg.LinkedArt.ObjectTTL,
		VocabTermTTL:    cfg.LinkedArt.VocabTermTTL,
		ImageChainTTL:   cfg.LinkedArt.ImageChainTTL,
	})

	a.oaiClient = oai.New(cfg.OAI.Endpoint, cfg.OAI.Timeout)

	return a, nil
}

func (a *app) close() {
	for _, db := range []*sql.DB{a.vocabularyDB, a.embeddingsDB, a.iconclassDB} {
		if db != nil {
			db.Close()
		}
	}
}

// objectURI builds the Linked Art object URI for a Rijksmuseum object
// number, mirroring how the live catalogue mints object URIs under its
// base URL.
func (a *app) objectURI(objectNumber string) string {
	return fmt.Sprintf("%s/object/%s", a.cfg.LinkedArt.BaseURL, objectNumber)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
