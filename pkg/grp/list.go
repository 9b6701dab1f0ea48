package grp

import "fmt"

// List returns display lines for the table of contents, in archive order.
// Verbose lines carry size and offset, followed by a file count line.
func (a *Archive) List(verbose bool) []string {
	var ret []string
	for _, f := range a.files {
		if !verbose {
			ret = append(ret, f.Name)
			continue
		}
		ret = append(ret, fmt.Sprintf("%s (%d bytes, offset %d (0x%x))", f.Name, f.Size, f.Offset, f.Offset))
	}
	if verbose {
		ret = append(ret, fmt.Sprintf("%d files found", len(a.files)))
	}
	return ret
}
