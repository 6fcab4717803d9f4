package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/grafton-db/grafton"
	"github.com/grafton-db/grafton/config"
)

var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `usage: grafton [flags] <command> [args]

commands:
  stats                      print node and edge counts
  path <edge-type> <from> <to>   print a shortest path between two node ids

flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		configPath  = flag.String("config", "", "YAML config file")
		dbPath      = flag.String("db", "", "database file (overrides config)")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("grafton", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("config err=%v", err)
		}
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	db, err := grafton.Open(cfg)
	if err != nil {
		log.Fatalf("open err=%v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "stats":
		if err := runStats(db); err != nil {
			log.Fatalf("stats err=%v", err)
		}
	case "path":
		if flag.NArg() != 4 {
			usage()
			os.Exit(2)
		}
		if err := runPath(db, flag.Arg(1), flag.Arg(2), flag.Arg(3)); err != nil {
			log.Fatalf("path err=%v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func runStats(db *grafton.DB) error {
	nodes, err := db.Store().CountNodes()
	if err != nil {
		return err
	}
	edges, err := db.Store().CountEdges()
	if err != nil {
		return err
	}
	fmt.Printf("nodes: %d\nedges: %d\n", nodes, edges)
	return nil
}

func runPath(db *grafton.DB, edgeType, fromArg, toArg string) error {
	from, err := strconv.ParseInt(fromArg, 10, 64)
	if err != nil {
		return fmt.Errorf("bad from id %q", fromArg)
	}
	to, err := strconv.ParseInt(toArg, 10, 64)
	if err != nil {
		return fmt.Errorf("bad to id %q", toArg)
	}

	p, err := db.Traverse(from).Both(edgeType).Repeat().MaxDepth(32).ShortestPath(to)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Println("no path")
		return nil
	}
	for i, n := range p.Nodes {
		if i > 0 {
			fmt.Print(" -> ")
		}
		fmt.Printf("%d(%s)", n.ID, n.Type)
	}
	fmt.Println()
	return nil
}
