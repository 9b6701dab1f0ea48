// grpar lists and extracts Build engine GRP archives.
package main

// grpar
//
// Copyright (C) Thomas Habets <thomas@habets.se> 2015
// https://github.com/ThomasHabets/grpar
//
// Based on grpar, (c) 2010 - Ganael LAPLANCHE, http://contribs.martymac.org
//
//   This program is free software; you can redistribute it and/or modify
//   it under the terms of the GNU General Public License as published by
//   the Free Software Foundation; either version 2 of the License, or
//   (at your option) any later version.
//
//   This program is distributed in the hope that it will be useful,
//   but WITHOUT ANY WARRANTY; without even the implied warranty of
//   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//   GNU General Public License for more details.
//
//   You should have received a copy of the GNU General Public License along
//   with this program; if not, write to the Free Software Foundation, Inc.,
//   51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/ThomasHabets/grpar/pkg/gcsdest"
	"github.com/ThomasHabets/grpar/pkg/grp"
)

const version = "0.3"

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "grpar, v.%s, (c) 2010 - Ganael LAPLANCHE, http://contribs.martymac.org\n", version)
}

func usage(w io.Writer) {
	printVersion(w)
	fmt.Fprintf(w, "usage: grpar [-h] [-V] [-t|-x] [-C path] [-v] [-O] -f grp_file [file_1] [file_2] [...]\n")
	fmt.Fprintf(w, "-h : this help\n")
	fmt.Fprintf(w, "-V : version\n")
	fmt.Fprintf(w, "-t : list files from group archive\n")
	fmt.Fprintf(w, "-x : extract files from group archive\n")
	fmt.Fprintf(w, "-C : specify destination directory (or gs://bucket/prefix)\n")
	fmt.Fprintf(w, "-v : verbose mode\n")
	fmt.Fprintf(w, "-O : extract named files to standard output\n")
	fmt.Fprintf(w, "-f : group archive\n")
	fmt.Fprintf(w, "-cloud_credentials : service account JSON file for gs:// destinations\n")
}

func setupLogging(w io.Writer, verbose bool) {
	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

func openDestination(ctx context.Context, o *options) (grp.Destination, func(), error) {
	if gcsdest.IsURL(o.destDir) {
		b, err := gcsdest.New(ctx, o.destDir, o.credentials)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				log.Warnf("Closing storage client: %v", err)
			}
		}, nil
	}
	return grp.LocalDir(o.destDir), func() {}, nil
}

func list(a *grp.Archive, o *options, stdout io.Writer) int {
	for _, l := range a.List(o.verbose) {
		fmt.Fprintln(stdout, l)
	}
	return 0
}

func extractToStdout(a *grp.Archive, o *options, stdout io.Writer) int {
	ret := 0
	for _, fn := range o.names {
		r, err := a.Open(fn)
		if err != nil {
			log.Error(err)
			ret = 1
			continue
		}
		if _, err := io.Copy(stdout, r); err != nil {
			log.Errorf("Failed to extract %q: %v", fn, err)
			ret = 1
		}
	}
	return ret
}

func extract(ctx context.Context, a *grp.Archive, o *options, stdout io.Writer) int {
	if o.stdout {
		return extractToStdout(a, o, stdout)
	}
	dst, done, err := openDestination(ctx, o)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer done()

	if len(o.names) == 0 {
		if err := a.ExtractAllTo(dst); err != nil {
			if errors.Is(err, grp.ErrPartialExtraction) {
				log.Errorf("Files extracted, with error(s)")
			} else {
				log.Error(err)
			}
			return 1
		}
		if o.verbose {
			fmt.Fprintf(stdout, "%d files extracted\n", len(a.Files()))
		}
		return 0
	}

	ret := 0
	n := 0
	for _, fn := range o.names {
		destPath := dst.Join(fn)
		if err := a.ExtractTo(dst, fn, destPath); err != nil {
			log.Error(err)
			ret = 1
			continue
		}
		log.Debugf("Extracted %q to %s", fn, destPath)
		n++
	}
	if o.verbose {
		fmt.Fprintf(stdout, "%d files extracted\n", n)
	}
	return ret
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	setupLogging(stderr, false)
	if len(args) == 0 {
		usage(stderr)
		return 1
	}
	o, err := parseArgs(args)
	switch {
	case errors.Is(err, errHelp):
		usage(stderr)
		return 0
	case errors.Is(err, errVersion):
		printVersion(stderr)
		return 0
	case err != nil:
		fmt.Fprintln(stderr, err)
		return 1
	}
	setupLogging(stderr, o.verbose)

	a, err := grp.Open(o.archive)
	if err != nil {
		log.Error(err)
		log.Error("Error reading group archive TOC")
		return 1
	}
	defer a.Close()
	log.WithField("archive", a.Path()).Debugf("%d files in archive", len(a.Files()))

	switch o.action {
	case actionList:
		return list(a, o, stdout)
	case actionExtract:
		return extract(ctx, a, o, stdout)
	}
	// Can't happen; parseArgs requires an action.
	return 1
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
