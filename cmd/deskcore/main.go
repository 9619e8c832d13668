package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/deskcore/internal/answerability"
	"github.com/deskcore/internal/api"
	"github.com/deskcore/internal/config"
	"github.com/deskcore/internal/enrich"
	"github.com/deskcore/internal/handoff"
	"github.com/deskcore/internal/intent"
	"github.com/deskcore/internal/llm"
	"github.com/deskcore/internal/logging"
	"github.com/deskcore/internal/orchestrator"
	"github.com/deskcore/internal/ratelimit"
	"github.com/deskcore/internal/related"
	"github.com/deskcore/internal/retrieval"
	"github.com/deskcore/internal/router"
	"github.com/deskcore/internal/tickets"
)

func main() {
	app := &cli.App{
		Name:  "deskcore",
		Usage: "conversational request-handling core for the student help desk",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				EnvVars: []string{"DESKCORE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the turn-processing service",
				Action: runServe,
			},
			{
				Name:  "config",
				Usage: "configuration helpers",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "write a sample configuration file",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "path",
								Value: "./deskcore.toml",
								Usage: "where to write the sample file",
							},
						},
						Action: func(c *cli.Context) error {
							path := c.String("path")
							if err := config.InitConfig(path); err != nil {
								return err
							}
							fmt.Printf("wrote sample configuration to %s\n", path)
							return nil
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.General.LogLevel, cfg.General.LogFormat)

	ctx := context.Background()

	budget := ratelimit.NewBudget(
		cfg.Limits.Capacity,
		time.Duration(cfg.Limits.WindowSeconds)*time.Second,
		time.Duration(cfg.Limits.RetryWaitMS)*time.Millisecond,
	)

	connectorOptions := llm.ConnectorOptions{
		Provider:       llm.Provider(cfg.AI.Provider),
		APIKey:         cfg.AI.APIKey,
		BaseURL:        cfg.AI.BaseURL,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Temperature:    cfg.AI.Temperature,
	}
	connector, err := llm.NewConnector(ctx, connectorOptions)
	if err != nil {
		return fmt.Errorf("failed to create model connector: %w", err)
	}
	client := llm.NewResilientClient(connector, budget, time.Duration(cfg.AI.TimeoutSeconds)*time.Second)

	embedder, err := llm.NewEmbedder(ctx, connectorOptions)
	if err != nil {
		log.Warn().Err(err).Msg("embedder unavailable, related-request matching degrades to recency order")
		embedder = nil
	}

	var store tickets.Store
	if cfg.Tickets.DatabaseURL != "" {
		pgStore, err := tickets.NewPGStore(ctx, cfg.Tickets.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("ticket store unavailable, related-request offers disabled")
		} else {
			defer pgStore.Close()
			store = pgStore
		}
	}

	var retriever retrieval.Retriever
	if cfg.Retrieval.BaseURL != "" {
		retriever = retrieval.NewHTTPRetriever(
			cfg.Retrieval.BaseURL,
			time.Duration(cfg.Retrieval.TimeoutSeconds)*time.Second,
		)
	} else {
		log.Warn().Msg("no retrieval base_url configured, every consult will escalate")
	}

	scorer := answerability.NewScorer(
		cfg.Scoring.Variant,
		answerability.NewLenientJudge(client),
		cfg.Scoring.JudgeWeight,
	)

	orch := orchestrator.New(orchestrator.Params{
		Interpreter: intent.NewInterpreter(client),
		Detector:    enrich.NewDetector(client, cfg.Enrich.MaxTurns, cfg.Enrich.TurnCharBudget),
		Router:      router.New(router.DefaultCatalog(), cfg.Router.FuzzyRatio, cfg.Router.MaxFiles),
		Scorer:      scorer,
		Matcher:     related.NewMatcher(embedder, cfg.Related.RecencyPool, cfg.Related.ShortlistCap, cfg.Related.DisplayCap),
		Engine:      handoff.NewEngine(client, cfg.Scoring.TauMin, cfg.Scoring.TauNorma, cfg.Handoff.DefaultDepartment),
		Retriever:   retriever,
		Store:       store,
		Answerer:    orchestrator.NewLLMAnswerer(client),
	})

	return api.NewServer(cfg.General.Listen, orch).Start()
}
