package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/auditdb"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/config"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/pipeline"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/version"
)

var (
	configPath   = flag.String("config", config.DefaultConfigPath, "Path to the pipeline config file")
	rawDir       = flag.String("raw", "", "Override the raw data directory from the config")
	stage        = flag.String("stage", "", "Stop after the named stage (geography, sentencing, population, join, rates, tables)")
	auditDBPath  = flag.String("audit-db", "", "Override the audit database path from the config")
	disableAudit = flag.Bool("no-audit", false, "Run without recording an audit trail")
	showVersion  = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("womens-imprisonment-PFA %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *auditDBPath != "" {
		cfg.Audit.DBPath = *auditDBPath
	}
	if *rawDir != "" {
		cfg.Paths.Raw = *rawDir
	}

	var audit *auditdb.DB
	if !*disableAudit {
		audit, err = auditdb.NewDB(cfg.Audit.DBPath)
		if err != nil {
			log.Fatalf("Failed to open audit database: %v", err)
		}
		defer audit.Close()

		if err := audit.MigrateUp(cfg.Audit.Migrations); err != nil {
			log.Fatalf("Failed to migrate audit database: %v", err)
		}
	}

	p := pipeline.New(cfg, fsutil.OSFileSystem{}, audit)
	var res *pipeline.Result
	if *stage != "" {
		res, err = p.RunTo(*stage)
	} else {
		res, err = p.Run()
	}
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	for _, out := range res.Outputs {
		log.Printf("output: %s", out)
	}
}
