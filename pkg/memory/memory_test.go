package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppendCapsHistory(t *testing.T) {
	m := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < MaxEntries+25; i++ {
		m.Append(Entry{Timestamp: base.Add(time.Duration(i) * time.Minute), Input: fmt.Sprintf("msg %d", i)})
	}

	assert.Equal(t, MaxEntries, m.Len())
	assert.Equal(t, "msg 25", m.Conversations[0].Input)
	assert.Equal(t, fmt.Sprintf("msg %d", MaxEntries+24), m.Conversations[MaxEntries-1].Input)
}

func TestAppendTruncatesFields(t *testing.T) {
	m := New()
	m.Append(Entry{
		Input:   strings.Repeat("é", MaxInputRunes+10),
		Summary: strings.Repeat("x", MaxSummaryRunes+1),
	})

	assert.Equal(t, MaxInputRunes, len([]rune(m.Conversations[0].Input)))
	assert.Equal(t, MaxSummaryRunes, len(m.Conversations[0].Summary))
}

func TestRecent(t *testing.T) {
	m := New()
	assert.Nil(t, m.Recent(5))

	for i := 0; i < 7; i++ {
		m.Append(Entry{Input: fmt.Sprint(i)})
	}

	recent := m.Recent(5)
	assert.Len(t, recent, 5)
	assert.Equal(t, "2", recent[0].Input)
	assert.Equal(t, "6", recent[4].Input)

	recent[0].Input = "changed"
	assert.Equal(t, "2", m.Conversations[2].Input, "Recent returns a copy")

	assert.Len(t, m.Recent(50), 7)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "日本", Truncate("日本語", 2))
}

func TestMarkRun(t *testing.T) {
	m := New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	m.MarkRun(at)

	assert.NotNil(t, m.LastRun)
	assert.Equal(t, time.UTC, m.LastRun.Location())
	assert.True(t, at.Equal(*m.LastRun))
}
