package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLocate writes a shell script standing in for the locate binary.
func fakeLocate(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locate")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestLocateQuery(t *testing.T) {
	cmd := fakeLocate(t, `printf '/home/ana/alpha.txt\0/home/ana/docs/alpha.pdf\0/home/bob/alpha.txt\0/home/anabel/alpha.txt\0'`)
	acc := &LocateAccelerator{Command: cmd}

	paths, err := acc.Query(context.Background(), "/home/ana", []string{"alpha"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/ana/alpha.txt", "/home/ana/docs/alpha.pdf"}, paths)

	paths, err = acc.Query(context.Background(), "/home/ana", []string{"alpha"}, []string{".PDF"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/ana/docs/alpha.pdf"}, paths)
}

func TestLocateNoMatches(t *testing.T) {
	acc := &LocateAccelerator{Command: fakeLocate(t, "exit 1")}
	paths, err := acc.Query(context.Background(), "/home", []string{"zzz"}, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocateFailure(t *testing.T) {
	acc := &LocateAccelerator{Command: fakeLocate(t, "echo 'database missing' >&2; exit 1")}
	_, err := acc.Query(context.Background(), "/home", []string{"a"}, nil)
	assert.ErrorContains(t, err, "database missing")
}

func TestLocateAvailable(t *testing.T) {
	cmd := fakeLocate(t, "true")

	tests := []struct {
		name string
		acc  LocateAccelerator
		root string
		want bool
	}{
		{name: "whole host", acc: LocateAccelerator{Command: cmd}, root: "/home/ana", want: true},
		{name: "indexed prefix", acc: LocateAccelerator{Command: cmd, Indexed: []string{"/home"}}, root: "/home/ana", want: true},
		{name: "outside index", acc: LocateAccelerator{Command: cmd, Indexed: []string{"/srv"}}, root: "/home/ana", want: false},
		{
			name: "network mount",
			acc:  LocateAccelerator{Command: cmd, Classifier: pathclass.Classifier{NetworkMounts: []string{"/mnt/nas"}}},
			root: "/mnt/nas/share",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.acc.Available(tt.root))
		})
	}
}
