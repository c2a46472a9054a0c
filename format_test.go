package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrivateBoard(t *testing.T) {
	s, err := decodePrivateBoard([]byte(privateBoardJSONFixture), 2024, 42)
	require.NoError(t, err)

	var b strings.Builder
	writePrivateBoard(&b, s)
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "1) 30 *."+strings.Repeat(" ", 25)+"owner", lines[2])
	assert.True(t, strings.HasSuffix(lines[3], "(anonymous user #7)"))
	assert.True(t, strings.HasPrefix(lines[4], "3) 10"))
}

func TestWriteCachedNote(t *testing.T) {
	var b strings.Builder
	writeCachedNote(&b, nil)
	assert.Empty(t, b.String())

	at := time.Unix(0, 0)
	writeCachedNote(&b, &at)
	assert.Contains(t, b.String(), "use --force to refresh")
}

func TestWriteSubmission(t *testing.T) {
	var b strings.Builder
	writeSubmission(&b, submissionResult{Outcome: outcomeIncorrect, Hint: hintTooHigh})
	writeSubmission(&b, submissionResult{Outcome: outcomeIncorrect, Hint: hintTooLow})
	writeSubmission(&b, submissionResult{Outcome: outcomeRateLimited, Wait: 58 * time.Second})
	assert.Equal(t, "That's not the right answer; your answer is too high.\n"+
		"That's not the right answer; your answer is too low.\n"+
		"You gave an answer too recently. Wait 58s before trying again (or use --wait).\n", b.String())
}
