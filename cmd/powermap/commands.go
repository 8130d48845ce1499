package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/db"
	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/geo"
	"github.com/doet/powermap/internal/importer"
	"github.com/doet/powermap/internal/logger"
	"github.com/doet/powermap/internal/powermap"
	"github.com/doet/powermap/internal/store"
)

var (
	importUser     string
	buildAreas     string
	buildGrid      string
	buildPlacement string
	buildProj      string
	buildLogLevel  string
	buildVerbose   bool

	log *slog.Logger
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:          "powermap",
		Short:        "Import map data and build power grids",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log = logger.Setup()
			var err error
			cfg, err = config.LoadFromEnv()
			return err
		},
	}

	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "List configured projects",
		Args:  cobra.NoArgs,
		Run:   runProjects,
	}

	importCmd = &cobra.Command{
		Use:   "import <project> [collection...]",
		Short: "Run the importers of a project, optionally only those writing the given collections",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build a power grid from GeoJSON files and print its statistics",
		Args:  cobra.NoArgs,
		RunE:  runBuild,
	}

	revisionsCmd = &cobra.Command{
		Use:   "revisions <project> <collection> <item>",
		Short: "Print the revision history of one item",
		Args:  cobra.ExactArgs(3),
		RunE:  runRevisions,
	}
)

func init() {
	importCmd.Flags().StringVar(&importUser, "user", "importer", "user recorded on new revisions")

	buildCmd.Flags().StringVar(&buildAreas, "areas", "", "areas GeoJSON file")
	buildCmd.Flags().StringVar(&buildGrid, "grid", "", "grid GeoJSON file (required)")
	buildCmd.Flags().StringVar(&buildPlacement, "placement", "", "placement GeoJSON file")
	buildCmd.Flags().StringVar(&buildProj, "projection", "", `proj4 definition, "planar" for metric input (default SWEREF99TM)`)
	buildCmd.Flags().StringVar(&buildLogLevel, "log-level", "warn", "lowest grid log level to print")
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "print the area table")
	_ = buildCmd.MarkFlagRequired("grid")

	rootCmd.AddCommand(projectsCmd, importCmd, buildCmd, revisionsCmd)
}

func runProjects(cmd *cobra.Command, _ []string) {
	for _, name := range cfg.Projects.Names() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
}

func openStore() (store.Store, error) {
	d, err := db.Connect(cfg.DatabaseURL, false)
	if err != nil {
		return nil, err
	}
	if err := store.Setup(d); err != nil {
		return nil, err
	}
	return store.NewGorm(d, log), nil
}

func runImport(cmd *cobra.Command, args []string) error {
	p, err := cfg.Projects.Project(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	importers, err := importer.ForProject(p, cfg.Projects.DataDir, st, log)
	if err != nil {
		return err
	}
	ic := importer.Context{Project: p.Name, User: importUser, Store: st, Logger: log}
	results, err := importer.Run(cmd.Context(), ic, importers, args[1:]...)
	for _, r := range results {
		fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return err
}

func readFeatures(path string) ([]feature.Feature, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fs, err := feature.DecodeCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fs, nil
}

func projection(def string) (geo.Projection, error) {
	if strings.EqualFold(def, "planar") {
		return geo.Planar{}, nil
	}
	return geo.NewProj4(def)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	proj, err := projection(buildProj)
	if err != nil {
		return err
	}
	areas, err := readFeatures(buildAreas)
	if err != nil {
		return err
	}
	items, err := readFeatures(buildGrid)
	if err != nil {
		return err
	}
	placement, err := readFeatures(buildPlacement)
	if err != nil {
		return err
	}

	g := powermap.New(powermap.Options{Projection: proj})
	if err := g.AddAreaFeatures(areas); err != nil {
		return err
	}
	g.AddGridFeatures(items)
	g.AddPlacementFeatures(placement)
	g.Finalize()

	out := cmd.OutOrStdout()
	if buildVerbose {
		g.WriteAreaTable(out)
		fmt.Fprintln(out)
	}
	g.WriteStatistics(out)
	for _, e := range g.Log.Filter(logger.ParseLevel(buildLogLevel)) {
		fmt.Fprintf(out, "%s %s: %s\n", e.Level, e.ItemID, e.Message)
	}
	return nil
}

func runRevisions(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	return printRevisions(cmd.Context(), cmd, st, args[0], args[1], args[2])
}

func printRevisions(ctx context.Context, cmd *cobra.Command, st store.Store, project, collection, item string) error {
	c, err := st.Collection(ctx, project, collection, false)
	if err != nil {
		return err
	}
	revs, err := c.ItemRevisions(ctx, item, true)
	if err != nil {
		return err
	}
	if len(revs) == 0 {
		return fmt.Errorf("%s/%s: item %q not found", project, collection, item)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(revs)
}
