package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandShortFlags(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
	}{
		{"", ""},
		{"-t -f a.grp", "-t -f a.grp"},
		{"-xvf a.grp", "-x -v -f a.grp"},
		{"-tvfa.grp", "-t -v -f a.grp"},
		{"-xC out -f a.grp X.TXT", "-x -C out -f a.grp X.TXT"},
		{"-Cout -xf a.grp", "-C out -x -f a.grp"},
		{"-f -x -t", "-f -x -t"},
		{"-x -f a.grp -v NAME", "-x -f a.grp -v NAME"},
		{"-x -- -v", "-x -- -v"},
		{"-cloud_credentials -x.json -x", "-cloud_credentials -x.json -x"},
		{"--cloud_credentials=c.json -xf a", "--cloud_credentials=c.json -x -f a"},
		{"-xz", "-xz"},
		{"-help", "-help"},
	} {
		got := strings.Join(expandShortFlags(strings.Fields(test.in)), " ")
		if got != test.want {
			t.Errorf("expandShortFlags(%q): got %q, want %q", test.in, got, test.want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	for _, test := range []struct {
		args string
		want *options
		err  string
	}{
		{args: "-h", err: errHelp.Error()},
		{args: "-?", err: errHelp.Error()},
		{args: "-help", err: errHelp.Error()},
		{args: "-V -t", err: errVersion.Error()},
		{args: "-t -x -f a.grp", err: "not both"},
		{args: "-t", err: "please specify a group archive"},
		{args: "-f a.grp", err: "please specify either -t or -x option"},
		{args: "-x -C -f a.grp", err: "please specify a group archive"},
		{args: "-z -f a.grp", err: "not defined"},
		{args: "-tO -f a.grp", err: "-O requires"},
		{args: "-h -z", err: errHelp.Error()},
		{args: "-z -h", err: "not defined"},
		{args: "-x -h", err: errHelp.Error()},
		{args: "-t -x -h", err: "not both"},
		{args: "-t -t -f a.grp", err: "not both"},
		{args: "-xV", err: errVersion.Error()},
		{
			args: "-f -h -t",
			want: &options{archive: "-h", destDir: ".", action: actionList, names: []string{}},
		},
		{args: "-xO -f a.grp", err: "-O requires"},
		{
			args: "-tvf a.grp",
			want: &options{archive: "a.grp", destDir: ".", action: actionList, verbose: true, names: []string{}},
		},
		{
			args: "-x -C out/// -f a.grp A.TXT B.TXT",
			want: &options{archive: "a.grp", destDir: "out", action: actionExtract, names: []string{"A.TXT", "B.TXT"}},
		},
		{
			args: "-x -C / -f a.grp",
			want: &options{archive: "a.grp", destDir: "/", action: actionExtract, names: []string{}},
		},
		{
			args: "-cloud_credentials c.json -xC gs://b/p/ -f a.grp",
			want: &options{archive: "a.grp", destDir: "gs://b/p/", action: actionExtract, credentials: "c.json", names: []string{}},
		},
		{
			args: "-xOf a.grp A.TXT",
			want: &options{archive: "a.grp", destDir: ".", action: actionExtract, stdout: true, names: []string{"A.TXT"}},
		},
	} {
		got, err := parseArgs(strings.Fields(test.args))
		if test.err != "" {
			if assert.Error(t, err, "args %q", test.args) {
				assert.Contains(t, err.Error(), test.err, "args %q", test.args)
			}
			continue
		}
		if assert.NoError(t, err, "args %q", test.args) {
			assert.Equal(t, test.want, got, "args %q", test.args)
		}
	}
}

// writeGRP writes a GRP archive of name/content pairs.
func writeGRP(t *testing.T, files ...[2]string) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("KenSilverman")
	binary.Write(&buf, binary.LittleEndian, uint32(len(files)))
	for _, f := range files {
		var name [12]byte
		copy(name[:], f[0])
		buf.Write(name[:])
		binary.Write(&buf, binary.LittleEndian, uint32(len(f[1])))
	}
	for _, f := range files {
		buf.WriteString(f[1])
	}
	fn := filepath.Join(t.TempDir(), "test.grp")
	require.NoError(t, os.WriteFile(fn, buf.Bytes(), 0o644))
	return fn
}

func runCmd(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	ret := run(context.Background(), args, &stdout, &stderr)
	return ret, stdout.String(), stderr.String()
}

func TestRunList(t *testing.T) {
	fn := writeGRP(t, [2]string{"FILE1.TXT", "HELLO"}, [2]string{"FILE2.TXT", ""})

	ret, out, _ := runCmd("-t", "-f", fn)
	assert.Equal(t, 0, ret)
	assert.Equal(t, "FILE1.TXT\nFILE2.TXT\n", out)

	ret, out, _ = runCmd("-tvf", fn)
	assert.Equal(t, 0, ret)
	assert.Equal(t, "FILE1.TXT (5 bytes, offset 48 (0x30))\nFILE2.TXT (0 bytes, offset 53 (0x35))\n2 files found\n", out)
}

func TestRunExtract(t *testing.T) {
	fn := writeGRP(t,
		[2]string{"GAME.CON", "define FOO 1"},
		[2]string{"USER.CON", "define BAR 2"},
	)

	t.Run("all", func(t *testing.T) {
		dir := t.TempDir()
		ret, out, errOut := runCmd("-xv", "-C", dir+"/", "-f", fn)
		assert.Equal(t, 0, ret, errOut)
		assert.Equal(t, "2 files extracted\n", out)
		for name, want := range map[string]string{"GAME.CON": "define FOO 1", "USER.CON": "define BAR 2"} {
			got, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			assert.Equal(t, want, string(got))
		}
	})
	t.Run("named", func(t *testing.T) {
		dir := t.TempDir()
		ret, _, errOut := runCmd("-x", "-C", dir, "-f", fn, "USER.CON", "MISSING.CON")
		assert.Equal(t, 1, ret)
		assert.Contains(t, errOut, "MISSING.CON")
		got, err := os.ReadFile(filepath.Join(dir, "USER.CON"))
		require.NoError(t, err)
		assert.Equal(t, "define BAR 2", string(got))
		_, err = os.Stat(filepath.Join(dir, "GAME.CON"))
		assert.True(t, os.IsNotExist(err))
	})
	t.Run("stdout", func(t *testing.T) {
		ret, out, errOut := runCmd("-xOf", fn, "USER.CON", "GAME.CON")
		assert.Equal(t, 0, ret, errOut)
		assert.Equal(t, "define BAR 2define FOO 1", out)
	})
	t.Run("stdout truncated", func(t *testing.T) {
		short := writeGRP(t, [2]string{"A.TXT", "0123456789"})
		data, err := os.ReadFile(short)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(short, data[:len(data)-4], 0o644))

		ret, out, errOut := runCmd("-xOf", short, "A.TXT")
		assert.Equal(t, 1, ret)
		assert.Equal(t, "012345", out)
		assert.Contains(t, errOut, "incomplete transfer")
	})
	t.Run("bad dir", func(t *testing.T) {
		ret, _, errOut := runCmd("-x", "-C", filepath.Join(t.TempDir(), "nope"), "-f", fn)
		assert.Equal(t, 1, ret)
		assert.Contains(t, errOut, "invalid destination directory")
	})
}

func TestRunErrors(t *testing.T) {
	ret, _, errOut := runCmd()
	assert.Equal(t, 1, ret)
	assert.Contains(t, errOut, "usage: grpar")

	ret, _, errOut = runCmd("-h")
	assert.Equal(t, 0, ret)
	assert.Contains(t, errOut, "usage: grpar")

	// Version and help don't touch the archive.
	ret, _, errOut = runCmd("-V", "-f", filepath.Join(t.TempDir(), "missing.grp"))
	assert.Equal(t, 0, ret)
	assert.Equal(t, "grpar, v."+version+", (c) 2010 - Ganael LAPLANCHE, http://contribs.martymac.org\n", errOut)

	ret, _, errOut = runCmd("-h", "-z")
	assert.Equal(t, 0, ret)
	assert.Contains(t, errOut, "usage: grpar")

	ret, _, errOut = runCmd("-t", "-f", filepath.Join(t.TempDir(), "missing.grp"))
	assert.Equal(t, 1, ret)
	assert.Contains(t, errOut, "cannot open group archive")

	bad := filepath.Join(t.TempDir(), "bad.grp")
	require.NoError(t, os.WriteFile(bad, make([]byte, 15), 0o644))
	ret, _, errOut = runCmd("-t", "-f", bad)
	assert.Equal(t, 1, ret)
	assert.Contains(t, errOut, "truncated")
}
