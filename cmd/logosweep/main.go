package main

import (
	"flag"
	"log"

	"github.com/remotetrail/job-board/internal/config"
	"github.com/remotetrail/job-board/internal/job"
	"github.com/remotetrail/job-board/internal/media"
	"github.com/rs/zerolog"
)

func main() {
	grace := flag.Duration("grace", media.SweepGracePeriod, "keep unreferenced logos modified more recently than this")
	flag.Parse()

	log.Println("sweeping unreferenced logos")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("unable to load config %v", err)
	}
	store := media.NewStore(cfg.UploadsDir)
	svc := job.NewService(job.NewRepository(cfg.JobsFile), store, zerolog.Nop())

	refs, err := svc.ReferencedLogos()
	if err != nil {
		log.Fatalf("unable to collect referenced logos: %v", err)
	}
	log.Printf("%d logos referenced by jobs\n", len(refs))
	removed, err := store.Sweep(refs, *grace)
	for _, ref := range removed {
		log.Printf("removed %s\n", ref)
	}
	if err != nil {
		log.Fatalf("unable to sweep logos: %v", err)
	}
	log.Printf("removed %d logos\n", len(removed))
}
