package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ThomasHabets/grpar/pkg/gcsdest"
)

type action int

const (
	actionNone action = iota
	actionList
	actionExtract
)

var (
	errHelp        = errors.New("help requested")
	errVersion     = errors.New("version requested")
	errBothActions = errors.New("please specify either -t or -x option, not both")
)

type options struct {
	archive     string
	destDir     string
	action      action
	verbose     bool
	stdout      bool
	credentials string
	names       []string
}

// Single letter options, and whether they take an argument.
var shortFlags = map[byte]bool{
	'?': false,
	'h': false,
	'V': false,
	't': false,
	'x': false,
	'v': false,
	'O': false,
	'C': true,
	'f': true,
}

var longFlags = map[string]bool{
	"cloud_credentials": true,
	"help":              false,
}

// expandShortFlags splits getopt style bundles like -xvf into -x -v -f, so
// that the flag package can parse them.
func expandShortFlags(args []string) []string {
	var ret []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || !strings.HasPrefix(arg, "-") || arg == "-" {
			return append(ret, args[i:]...)
		}
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			ret = append(ret, arg)
			continue
		}
		if takesArg, found := longFlags[name]; found || len(name) == 1 || strings.HasPrefix(arg, "--") {
			ret = append(ret, arg)
			if takesArg || (len(name) == 1 && shortFlags[name[0]]) {
				if i+1 < len(args) {
					i++
					ret = append(ret, args[i])
				}
			}
			continue
		}
		if !isBundle(name) {
			// Let the flag package complain.
			ret = append(ret, arg)
			continue
		}
		for j := 0; j < len(name); j++ {
			c := name[j]
			ret = append(ret, "-"+string(c))
			if !shortFlags[c] {
				continue
			}
			if rest := name[j+1:]; rest != "" {
				ret = append(ret, rest)
			} else if i+1 < len(args) {
				i++
				ret = append(ret, args[i])
			}
			break
		}
	}
	return ret
}

// isBundle returns true if s is a valid run of short options. Only the
// first option taking an argument needs to be valid; the rest is its value.
func isBundle(s string) bool {
	for i := 0; i < len(s); i++ {
		takesArg, found := shortFlags[s[i]]
		if !found {
			return false
		}
		if takesArg {
			return true
		}
	}
	return true
}

// scanInOrder walks the options left to right, so that help, version and a
// second action take effect where they appear on the command line. It stops
// at the first unknown option and leaves it to the flag package.
func scanInOrder(args []string) error {
	var actions int
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || arg == "-" || !strings.HasPrefix(arg, "-") {
			return nil
		}
		name := strings.TrimLeft(arg, "-")
		switch name {
		case "h", "?", "help":
			return errHelp
		case "V":
			return errVersion
		case "t", "x":
			if actions++; actions > 1 {
				return errBothActions
			}
			continue
		}
		if strings.Contains(name, "=") {
			continue
		}
		takesArg, found := longFlags[name]
		if !found && len(name) == 1 {
			takesArg, found = shortFlags[name[0]]
		}
		if !found {
			return nil
		}
		if takesArg {
			i++
		}
	}
	return nil
}

func trimDestDir(d string) string {
	if d == "" || gcsdest.IsURL(d) {
		return d
	}
	t := strings.TrimRight(d, "/")
	if t == "" {
		return "/"
	}
	return t
}

func parseArgs(args []string) (*options, error) {
	fs := flag.NewFlagSet("grpar", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		help1   = fs.Bool("h", false, "This help.")
		help2   = fs.Bool("?", false, "This help.")
		ver     = fs.Bool("V", false, "Show version.")
		doList  = fs.Bool("t", false, "List files from group archive.")
		doExtr  = fs.Bool("x", false, "Extract files from group archive.")
		destDir = fs.String("C", ".", "Destination directory, or gs://bucket/prefix.")
		verbose = fs.Bool("v", false, "Verbose mode.")
		stdout  = fs.Bool("O", false, "Extract named files to standard output.")
		archive = fs.String("f", "", "Group archive.")
		creds   = fs.String("cloud_credentials", "", "Path to JSON file containing credentials.")
	)
	expanded := expandShortFlags(args)
	if err := scanInOrder(expanded); err != nil {
		return nil, err
	}
	if err := fs.Parse(expanded); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}
	if *help1 || *help2 {
		return nil, errHelp
	}
	if *ver {
		return nil, errVersion
	}

	o := &options{
		archive:     *archive,
		destDir:     trimDestDir(*destDir),
		verbose:     *verbose,
		stdout:      *stdout,
		credentials: *creds,
		names:       fs.Args(),
	}
	switch {
	case *doList && *doExtr:
		return nil, errBothActions
	case *doList:
		o.action = actionList
	case *doExtr:
		o.action = actionExtract
	}
	if o.archive == "" {
		return nil, fmt.Errorf("please specify a group archive")
	}
	if o.action == actionNone {
		return nil, fmt.Errorf("please specify either -t or -x option")
	}
	if o.destDir == "" {
		return nil, fmt.Errorf("please specify a destination directory")
	}
	if o.stdout && (o.action != actionExtract || len(o.names) == 0) {
		return nil, fmt.Errorf("-O requires -x and file names")
	}
	return o, nil
}
