// command ncagg concatenates and aggregates a list of classic-NetCDF input
// files along their unlimited dimensions into a single output file,
// stitching over gaps and trimming overlaps as configured.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/airdata/ncagg/builder"
	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/evaluate"
	"github.com/airdata/ncagg/reduce"
	"github.com/airdata/ncagg/store/ncdf"
)

// Version is the version number reported by --version.
const Version = "0.1.0"

// Cfg holds configuration information, mirroring the teacher's own
// viper-backed Cfg wrapper in inmaputil/cmd.go, reduced to the single
// command this program exposes.
type Cfg struct {
	*viper.Viper
	Root *cobra.Command
}

func main() {
	cfg := newCfg()
	if err := cfg.Root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCfg() *Cfg {
	cfg := &Cfg{Viper: viper.New()}
	cfg.SetEnvPrefix("NCAGG")

	var (
		unlimFlags   []string
		boundsFlag   string
		chunkFlags   []string
		templatePath string
		logLevel     string
		genTemplate  string
		showVersion  bool
	)

	cfg.Root = &cobra.Command{
		Use:   "ncagg dst [src...]",
		Short: "Concatenate and aggregate NetCDF files along an unlimited dimension.",
		Long: `ncagg builds an output container from dst's template (or the shape of the
first input file), plans how each source file's records and any gaps between
them map onto the output's unlimited dimensions, and writes the result.

Configuration can be changed by using a template file (-t) or by command-line
flags. Environment variables are not read.`,
		DisableAutoGenTag: true,
		Args:              cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel)

			if showVersion {
				fmt.Printf("ncagg v%s\n", Version)
				return nil
			}

			dst := args[0]
			src, err := resolveSources(args[1:])
			if err != nil {
				return err
			}

			if genTemplate != "" {
				return runGenerateTemplate(src, genTemplate, log)
			}

			aggCfg, err := loadConfig(templatePath, src, log)
			if err != nil {
				return err
			}

			if err := applyUnlimitedFlags(aggCfg, unlimFlags); err != nil {
				return err
			}
			if err := applyBoundsFlag(aggCfg, boundsFlag); err != nil {
				return err
			}
			if err := applyChunksizeFlags(aggCfg, chunkFlags); err != nil {
				return err
			}
			if err := aggCfg.Validate(); err != nil {
				return err
			}

			return runAggregate(aggCfg, src, dst, log)
		},
	}

	flags := cfg.Root.Flags()
	flags.StringArrayVarP(&unlimFlags, "unlimited", "u", nil, "udim:ivar[:hz[:hz...]] - configure an unlimited dimension's indexing variable and expected cadence(s); repeatable")
	flags.StringVarP(&boundsFlag, "bounds", "b", "", "min:max, or Tstart[:[T]stop] for calendar bounds on the primary dimension")
	flags.StringArrayVarP(&chunkFlags, "chunksize", "c", nil, "udim:chunksize - override chunk sizes for variables on udim; repeatable")
	flags.StringVarP(&templatePath, "template", "t", "", "load a template config (TOML) instead of reflecting one from the first source file")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "logrus level: debug, info, warn, error")
	flags.StringVar(&genTemplate, "generate_template", "", "reflect a config from the first source file, write it as TOML to PATH, and exit")
	flags.BoolVar(&showVersion, "version", false, "print the version number and exit")

	for _, name := range []string{"unlimited", "bounds", "chunksize", "template", "log-level"} {
		cfg.BindPFlag(name, flags.Lookup(name))
	}

	return cfg
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// resolveSources returns args if non-empty, otherwise reads
// whitespace-separated paths from stdin, per spec.md §6's "source may also
// be read as whitespace-separated from standard input" rule.
func resolveSources(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var paths []string
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		paths = append(paths, scanner.Text())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ncagg: reading source list from stdin: %v", err)
	}
	return paths, nil
}

// loadConfig builds the run's Config: from a template file if templatePath
// is set, otherwise reflected off the first source file.
func loadConfig(templatePath string, src []string, log *logrus.Logger) (*config.Config, error) {
	if templatePath != "" {
		return config.LoadTemplate(templatePath)
	}
	if len(src) == 0 {
		return nil, &config.ErrConfig{Reason: "no template given and no source files to reflect a config from"}
	}
	h, err := ncdf.OpenFile(src[0])
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return config.FromHandle(h)
}

func runGenerateTemplate(src []string, path string, log *logrus.Logger) error {
	if len(src) == 0 {
		return &config.ErrConfig{Reason: "--generate_template requires at least one source file"}
	}
	h, err := ncdf.OpenFile(src[0])
	if err != nil {
		return err
	}
	defer h.Close()
	cfg, err := config.FromHandle(h)
	if err != nil {
		return err
	}
	return config.WriteTemplate(cfg, path)
}

func runAggregate(cfg *config.Config, src []string, dst string, log *logrus.Logger) error {
	h, err := reduce.NewHandler(cfg, log)
	if err != nil {
		return err
	}

	p, err := builder.Build(cfg, src, ncdf.OpenFile, log)
	if err != nil {
		return err
	}

	return evaluate.Run(cfg, p, dst, ncdf.CreateFile, h, log, evaluate.Options{})
}
