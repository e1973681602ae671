package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/config"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/manifest"
	"github.com/seqdag/seqdag/syncengine"
	"github.com/seqdag/seqdag/temporal"
	"github.com/seqdag/seqdag/transport"
)

type configLoader func() (config.Config, error)

// withApp loads config, opens every component, runs fn, and always closes
// the store before returning — including on error, so a failed command
// still flushes the filter checkpoint.
func withApp(loadConfig configLoader, logger *slog.Logger, fn func(*App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := openApp(cfg, logger)
	if err != nil {
		return businessError(err)
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Warn("close failed", "error", cerr)
		}
	}()
	if err := fn(app); err != nil {
		return businessError(err)
	}
	return nil
}

// businessError wraps a component error with its contracted exit code, leaving
// usageErrors (already a *cliError) untouched.
func businessError(err error) error {
	if ce, ok := err.(*cliError); ok {
		return ce
	}
	return &cliError{code: bioerr.ExitCode(err), err: err}
}

func newInitCmd(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create a new store base directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initDataDir(cfg); err != nil {
				return businessError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized store at %s\n", cfg.DataDir)
			return nil
		},
	}
}

func newIngestCmd(loadConfig configLoader, logger *slog.Logger) *cobra.Command {
	var manifestID, seqTimeStr, taxonTimeStr string
	cmd := &cobra.Command{
		Use:   "ingest <source-tag> <path>",
		Short: "ingest a FASTA file under source-tag, sealing a new manifest version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceTag, path := args[0], args[1]
			if manifestID == "" {
				manifestID = sourceTag
			}
			seqTime, err := parseTimeFlag(seqTimeStr)
			if err != nil {
				return usageError(fmt.Errorf("--seq-time: %w", err))
			}
			taxonTime, err := parseTimeFlag(taxonTimeStr)
			if err != nil {
				return usageError(fmt.Errorf("--taxon-time: %w", err))
			}

			return withApp(loadConfig, logger, func(app *App) error {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()

				m, err := app.pipeline.Ingest(cmd.Context(), sourceTag, f, manifestID, seqTime, taxonTime)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sealed %s@%s: %d chunks, merkle_root=%s\n",
					m.ManifestID, m.Version, len(m.ChunkList), m.MerkleRoot)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&manifestID, "manifest", "", "manifest-id to seal into (default: source-tag)")
	cmd.Flags().StringVar(&seqTimeStr, "seq-time", "", "sequence-time for this ingest (RFC3339, default now)")
	cmd.Flags().StringVar(&taxonTimeStr, "taxon-time", "", "taxonomy-time for this ingest (RFC3339, default now)")
	return cmd
}

func newListCmd(loadConfig configLoader, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every known manifest-id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(loadConfig, logger, func(app *App) error {
				ids, err := app.manifests.ManifestIDs()
				if err != nil {
					return err
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func newInfoCmd(loadConfig configLoader, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "info <manifest-id>",
		Short: "show every recorded version of a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifestID := args[0]
			return withApp(loadConfig, logger, func(app *App) error {
				versions, err := app.manifests.Versions(manifestID)
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					return bioerr.NotFound("cmd.info", manifestID)
				}
				sort.Strings(versions)
				for _, v := range versions {
					m, err := app.manifests.Get(manifestID, v)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  chunks=%d  merkle_root=%s  seq_time=%s  taxon_time=%s  prev=%s\n",
						v, len(m.ChunkList), m.MerkleRoot, m.SequenceTime.Format(time.RFC3339), m.TaxonomyTime.Format(time.RFC3339), m.PreviousVersion)
					for _, k := range manifest.SortedMetadataKeys(m.Metadata) {
						fmt.Fprintf(cmd.OutOrStdout(), "    %s=%s\n", k, m.Metadata[k])
					}
				}
				return nil
			})
		},
	}
}

func newSyncCmd(loadConfig configLoader, logger *slog.Logger) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "sync <manifest-id>",
		Short: "fetch and install a remote manifest's missing chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifestID := args[0]
			return withApp(loadConfig, logger, func(app *App) error {
				endpoint := from
				if endpoint == "" {
					endpoint = app.cfg.SyncEndpoint
				}
				if endpoint == "" {
					return usageError(fmt.Errorf("sync: no remote endpoint; pass --from or set SEQDAG_SYNC_ENDPOINT"))
				}

				client := transport.NewClient(endpoint)
				ctx := cmd.Context()
				remote, err := client.FetchManifest(ctx, manifestID, "")
				if err != nil {
					return err
				}

				local, err := localHeadOrEmpty(app, manifestID)
				if err != nil {
					return err
				}

				scfg := syncengine.DefaultConfig()
				scfg.Concurrency = app.cfg.FetchConcurrency
				engine := syncengine.NewEngine(app.db, app.chunks, app.sequences, app.deltas, app.manifests, app.temporal, client, scfg)
				coord := temporal.Coordinate{SequenceTime: remote.SequenceTime, TaxonomyTime: remote.TaxonomyTime}
				if err := engine.Sync(ctx, local, remote, coord); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %s to %s (%d chunks)\n", manifestID, remote.Version, len(remote.ChunkList))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "remote base URL (default: SEQDAG_SYNC_ENDPOINT)")
	return cmd
}

// localHeadOrEmpty returns the newest locally known version of manifestID,
// or a zero-chunk manifest if none exists yet (a first sync has nothing to
// diff against).
func localHeadOrEmpty(app *App, manifestID string) (manifest.Manifest, error) {
	versions, err := app.manifests.Versions(manifestID)
	if err != nil {
		return manifest.Manifest{}, err
	}
	if len(versions) == 0 {
		return manifest.Manifest{}, nil
	}
	sort.Strings(versions)
	return app.manifests.Get(manifestID, versions[len(versions)-1])
}

func newVerifyCmd(loadConfig configLoader, logger *slog.Logger) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "verify <manifest-id>",
		Short: "recompute chunk hashes and the Merkle root, reconstructing every sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifestID := args[0]
			return withApp(loadConfig, logger, func(app *App) error {
				v := version
				if v == "" {
					versions, err := app.manifests.Versions(manifestID)
					if err != nil {
						return err
					}
					if len(versions) == 0 {
						return bioerr.NotFound("cmd.verify", manifestID)
					}
					sort.Strings(versions)
					v = versions[len(versions)-1]
				}
				m, err := app.manifests.Get(manifestID, v)
				if err != nil {
					return err
				}
				if err := app.facade.VerifyManifest(m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s@%s: OK\n", manifestID, v)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to verify (default: latest)")
	return cmd
}

func newResolveCmd(loadConfig configLoader, logger *slog.Logger) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "resolve <manifest-id>",
		Short: "resolve the manifest version in effect at a point in time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifestID := args[0]
			return withApp(loadConfig, logger, func(app *App) error {
				var bound *time.Time
				if at != "" {
					t, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return usageError(fmt.Errorf("--at: %w", err))
					}
					bound = &t
				}
				root, err := app.temporal.ResolveAt(manifestID, bound, bound)
				if err != nil {
					return err
				}
				versions, err := app.manifests.Versions(manifestID)
				if err != nil {
					return err
				}
				for _, v := range versions {
					m, err := app.manifests.Get(manifestID, v)
					if err != nil {
						return err
					}
					if m.MerkleRoot == root {
						fmt.Fprintf(cmd.OutOrStdout(), "%s@%s\n", manifestID, v)
						return nil
					}
				}
				return bioerr.NotFound("cmd.resolve", manifestID)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "resolve as of this timestamp (RFC3339, default: current head)")
	return cmd
}

func newGetCmd(loadConfig configLoader, logger *slog.Logger) *cobra.Command {
	var source string
	var info bool
	cmd := &cobra.Command{
		Use:   "get <accession-or-hash>",
		Short: "print a canonical sequence's bytes, by content hash or by source-tag/accession",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := args[0]
			return withApp(loadConfig, logger, func(app *App) error {
				var raw []byte
				switch {
				case source != "":
					b, err := app.facade.GetByAccession(source, ref, time.Time{})
					if err != nil {
						return err
					}
					raw = b
				case strings.Contains(ref, "/"):
					parts := strings.SplitN(ref, "/", 2)
					b, err := app.facade.GetByAccession(parts[0], parts[1], time.Time{})
					if err != nil {
						return err
					}
					raw = b
				default:
					h, ok := parseHexHash(ref)
					if !ok {
						return usageError(fmt.Errorf("get: %q is neither a 64-hex-digit hash nor source-tag/accession", ref))
					}
					b, err := app.facade.GetByHash(h)
					if err != nil {
						return err
					}
					raw = b
				}
				if info {
					return printSequenceInfo(cmd, app, raw)
				}
				_, err := cmd.OutOrStdout().Write(raw)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source-tag to resolve accession against")
	cmd.Flags().BoolVar(&info, "info", false, "print hash, length, alphabet and representations instead of the raw bytes")
	return cmd
}

func printSequenceInfo(cmd *cobra.Command, app *App, raw []byte) error {
	cs, err := app.facade.Describe(hashcodec.HashSequence(raw))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "hash=%s length=%d alphabet=%s\n", cs.Hash, cs.Length, cs.Alphabet)
	reps, err := app.facade.Representations(cs.Hash)
	if err != nil {
		return err
	}
	for _, r := range reps {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s/%s taxon=%s ingested=%s\n", r.SourceTag, r.Accession, r.TaxonID, r.IngestTime.Format(time.RFC3339))
	}
	return nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseHexHash(s string) (hashcodec.Hash, bool) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return hashcodec.Hash{}, false
	}
	return hashcodec.HashFromBytes(b)
}
