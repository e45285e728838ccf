/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command fastzip is the CLI entrypoint: a single command
// with two implicit modes (pack a directory, extract an archive), built
// directly on spf13/cobra + spf13/pflag rather than through a thicker
// command-tree wrapper, since fastzip has one command, not a tree of
// subcommands.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sasq64/fastzip/report"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run builds and executes the root command, returning the process exit
// code.
func run(args []string) int {
	cfg := defaultConfig()

	level, rest := extractDigitFlag(args)
	if level >= 0 {
		cfg.level = level
		cfg.levelSet = true
	}

	root := &cobra.Command{
		Use:           "fastzip [options] <archive> <paths...>",
		Short:         "High-throughput parallel ZIP archiver/dearchiver with optional JAR signing",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.archive = args[0]
			cfg.paths = args[1:]
			if cfg.apk {
				cfg.applyAPK()
			}
			return dispatch(cfg)
		},
	}

	bindFlags(root, cfg)
	root.SetArgs(rest)

	if err := root.Execute(); err != nil {
		rep := report.New(os.Stderr, false)
		rep.Error(err.Error())
		return 1
	}
	return 0
}

// extractDigitFlag pulls a bare "-<digit>" token (DEFLATE level 0-9) out of
// args before handing the rest to cobra/pflag, which has no notion of a
// single-dash numeric flag.
func extractDigitFlag(args []string) (level int, rest []string) {
	level = -1
	for _, a := range args {
		if len(a) == 2 && a[0] == '-' && a[1] >= '0' && a[1] <= '9' {
			level = int(a[1] - '0')
			continue
		}
		rest = append(rest, a)
	}
	return level, rest
}

func bindFlags(cmd *cobra.Command, cfg *config) {
	f := cmd.Flags()

	f.BoolVarP(&cfg.list, "list", "l", false, "list archive contents, then exit")
	f.BoolVarP(&cfg.stripPaths, "junk-paths", "j", false, "strip leading path components from archive names")
	f.IntVarP(&cfg.workers, "threads", "t", 0, "worker count (default: hardware concurrency)")
	f.BoolVarP(&cfg.verbose, "verbose", "v", false, "print each entry")
	f.StringVarP(&cfg.destDir, "dir", "d", "", "destination directory for extraction (overrides smart root)")
	f.BoolVarP(&cfg.force, "extract", "x", false, "force extraction mode")
	f.BoolVarP(&cfg.sequential, "sequential", "s", false, "sequential commit order")
	f.BoolVarP(&cfg.align, "align", "A", false, "4-byte-align STORE entries")

	var storeExtsCSV string
	f.StringVarP(&storeExtsCSV, "store-ext", "X", "", "store files with these extensions verbatim (comma separated)")

	f.StringVarP(&cfg.fromZip, "from-zip", "Z", "", "add entries from another ZIP, preserving existing DEFLATE streams")
	f.IntVarP(&cfg.earlyOut, "early-out", "e", defaultEarlyOut, "early-out threshold in percent")

	signFlag := f.StringP("sign", "S", "", "JAR-sign; optional =keystore,password,alias (no built-in keystore: one must be given here or via --apk)")
	f.Lookup("sign").NoOptDefVal = " "

	f.BoolVar(&cfg.apk, "apk", false, "convenience: sign with $HOME/.android/debug.keystore, align, Android STORE-ext list")
	f.BoolVar(&cfg.force64, "zip64", false, "force ZIP64 emission")
	f.BoolVarP(&cfg.quiet, "quiet", "q", false, "suppress non-error info output")
	f.StringVarP(&cfg.output, "output", "o", "", "explicit output archive path override")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if storeExtsCSV != "" {
			cfg.storeExts = parseExtList(storeExtsCSV)
		}
		if f.Changed("sign") {
			cfg.sign = true
			if strings.TrimSpace(*signFlag) != "" {
				parts := strings.SplitN(*signFlag, ",", 3)
				if len(parts) > 0 {
					cfg.signKeystore = parts[0]
				}
				if len(parts) > 1 {
					cfg.signPassword = parts[1]
				}
				if len(parts) > 2 {
					cfg.signAlias = parts[2]
				}
			}
		}
		return nil
	}
}
