// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_BasicRecords(t *testing.T) {
	input := strings.Join([]string{
		`{"repo":"acme/widgets","op":"add","path":"a.go","content":"package a"}`,
		`{"repo":"acme/widgets","op":"delete","path":"b.go"}`,
	}, "\n")

	var got []LineRecord
	stats, err := Parse(strings.NewReader(input), "acme/widgets", func(lr LineRecord) error {
		got = append(got, lr)
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Records)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Line)
	require.Equal(t, OpAdd, got[0].Op)
	require.Equal(t, 2, got[1].Line)
	require.Equal(t, OpDelete, got[1].Op)
}

func TestParse_SkipsBlankLines(t *testing.T) {
	input := "\n" + `{"repo":"r","op":"add","path":"a.go"}` + "\n\n\n"
	stats, err := Parse(strings.NewReader(input), "r", func(LineRecord) error { return nil }, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Records)
	require.Equal(t, 1, stats.Lines)
}

func TestParse_ChangesetMarkerNotPassedToHandler(t *testing.T) {
	input := strings.Join([]string{
		`{"new_changeset":"cs-123"}`,
		`{"repo":"r","op":"add","path":"a.go"}`,
	}, "\n")

	var handled int
	stats, err := Parse(strings.NewReader(input), "r", func(LineRecord) error {
		handled++
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Markers)
	require.Equal(t, 1, stats.Records)
	require.Equal(t, 1, handled)
}

func TestParse_MalformedLineInvokesMalformedHandler(t *testing.T) {
	input := `{"repo": not json}`
	var malformedLines []int
	stats, err := Parse(strings.NewReader(input), "r", func(LineRecord) error { return nil }, func(line int, raw string, decodeErr error) {
		malformedLines = append(malformedLines, line)
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Malformed)
	require.Equal(t, []int{1}, malformedLines)
}

func TestParse_LegacyPlainPathFallback(t *testing.T) {
	input := "src/legacy_file.go"
	var got []LineRecord
	stats, err := Parse(strings.NewReader(input), "acme/widgets", func(lr LineRecord) error {
		got = append(got, lr)
		return nil
	}, func(line int, raw string, decodeErr error) {
		t.Fatalf("unexpected malformed line: %d %q", line, raw)
	})
	require.NoError(t, err)
	require.Equal(t, 0, stats.Malformed)
	require.Equal(t, 1, stats.Records)
	require.Len(t, got, 1)
	require.Equal(t, OpModify, got[0].Op)
	require.Equal(t, "src/legacy_file.go", got[0].Path)
	require.Equal(t, "acme/widgets", got[0].Repo)
}

func TestParse_HandlerErrorStopsParse(t *testing.T) {
	input := strings.Join([]string{
		`{"repo":"r","op":"add","path":"a.go"}`,
		`{"repo":"r","op":"add","path":"b.go"}`,
	}, "\n")

	var seen int
	_, err := Parse(strings.NewReader(input), "r", func(LineRecord) error {
		seen++
		return assertErr
	}, nil)
	require.Error(t, err)
	require.Equal(t, 1, seen)
}

var assertErr = errStub("boom")

type errStub string

func (e errStub) Error() string { return string(e) }
