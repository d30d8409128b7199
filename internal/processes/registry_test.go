package processes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryShape(t *testing.T) {
	reg := Default()

	require.Equal(t, 8, reg.Len())
	primary := reg.Primary()
	assert.Equal(t, Transcoder, primary.Identifier)
	assert.Equal(t, "transcode_status", primary.StatusColumn)
	assert.Equal(t, "abc/transcoded/", primary.ResultKey("abc"))

	moderation, ok := reg.Lookup(ContentModeration)
	require.True(t, ok)
	assert.True(t, moderation.NeedsVideo())
	assert.False(t, moderation.IsPrimary())
	assert.Equal(t, "abc/moderation.json", moderation.ResultKey("abc"))

	transcription, ok := reg.Lookup(" transcription ")
	require.True(t, ok)
	assert.False(t, transcription.NeedsVideo())

	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)
	assert.Equal(t, -1, reg.Index("unknown"))
}

func TestNewRejectsInvalidRegistries(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]Entry{
		{Identifier: "a", StatusColumn: "a_status", ResultSuffix: "/a.json", Kind: KindVideoEnrichment},
	})
	assert.Error(t, err, "registry without a primary entry")

	_, err = New([]Entry{
		{Identifier: "a", StatusColumn: "a_status", ResultSuffix: "/out/", Kind: KindPrimary},
		{Identifier: "a", StatusColumn: "b_status", ResultSuffix: "/b.json", Kind: KindTextEnrichment},
	})
	assert.Error(t, err, "duplicate identifier")

	_, err = New([]Entry{
		{Identifier: "a", StatusColumn: "a_status", ResultSuffix: "/out/", Kind: KindPrimary},
		{Identifier: "b", StatusColumn: "a_status", ResultSuffix: "/b.json", Kind: KindTextEnrichment},
	})
	assert.Error(t, err, "duplicate column")

	_, err = New([]Entry{
		{Identifier: "a", StatusColumn: "a_status", ResultSuffix: "/out/", Kind: KindPrimary},
		{Identifier: "b", StatusColumn: "b_status", ResultSuffix: ".b.json", Kind: KindTextEnrichment},
	})
	assert.ErrorContains(t, err, "result suffix", "outputs must live under the content hash directory")

	r, err := New([]Entry{
		{Identifier: "a", StatusColumn: "a_status", ResultSuffix: "/out/", Kind: KindPrimary},
		{Identifier: "b", StatusColumn: "b_status", ResultSuffix: "/b.json", Kind: KindTextEnrichment},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestFlagsRoundTripThroughWireEncoding(t *testing.T) {
	reg := Default()

	flags, err := reg.FlagsFromIdentifiers([]string{"transcoder", "transcription", "keyphrase-extraction"})
	require.NoError(t, err)
	assert.Equal(t, "10001001", flags.Encode())

	decoded, err := reg.DecodeFlags("10001001")
	require.NoError(t, err)
	for i := 0; i < reg.Len(); i++ {
		assert.Equal(t, flags.Enabled(i), decoded.Enabled(i), "flag %d", i)
	}

	off := flags.With(0, false)
	assert.Equal(t, "00001001", off.Encode())
	assert.Equal(t, "10001001", flags.Encode(), "With must not mutate the receiver")
}

func TestDecodeFlagsValidation(t *testing.T) {
	reg := Default()

	_, err := reg.DecodeFlags("101")
	assert.Error(t, err)

	_, err = reg.DecodeFlags("1000100x")
	assert.Error(t, err)

	_, err = reg.FlagsFromIdentifiers([]string{"transcoder", "thumbnailer"})
	assert.Error(t, err)
}

func TestDefaultResultKeysLiveUnderContentHash(t *testing.T) {
	for _, entry := range Default().Entries() {
		assert.True(t, strings.HasPrefix(entry.ResultKey("abc"), "abc/"), "%s -> %s", entry.Identifier, entry.ResultKey("abc"))
	}
}
