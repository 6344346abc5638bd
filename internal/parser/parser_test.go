package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const inlineDoc = `<?xml version="1.0" encoding="UTF-8"?>
<VAST version="3.0">
  <Ad id="ad-1">
    <InLine>
      <AdSystem>ExampleAds</AdSystem>
      <AdTitle> Spring Sale </AdTitle>
      <Impression><![CDATA[https://track.example.com/imp?id=1]]></Impression>
      <Impression><![CDATA[https://track.example.com/imp?id=2]]></Impression>
      <Error><![CDATA[https://track.example.com/err?code=[ERRORCODE]]]></Error>
      <Creatives>
        <Creative>
          <Linear>
            <Duration>00:00:30</Duration>
            <MediaFiles>
              <MediaFile type="video/mp4" bitrate="1200" width="1280" height="720"><![CDATA[https://cdn.example.com/ad.mp4]]></MediaFile>
            </MediaFiles>
          </Linear>
        </Creative>
      </Creatives>
    </InLine>
  </Ad>
</VAST>`

const wrapperDoc = `<VAST version="2.0">
  <Ad id="wrap-1">
    <Wrapper>
      <AdSystem>UpstreamNet</AdSystem>
      <VASTAdTagURI><![CDATA[https://other.example.com/vast]]></VASTAdTagURI>
      <Impression>https://track.example.com/wrap</Impression>
    </Wrapper>
  </Ad>
</VAST>`

func TestParseInline(t *testing.T) {
	t.Parallel()

	parsed, err := New().Parse(inlineDoc)
	require.NoError(t, err)

	require.Equal(t, "3.0", parsed[KeyVersion])
	require.Equal(t, "ad-1", parsed[KeyAdID])
	require.Equal(t, false, parsed[KeyWrapper])
	require.Equal(t, "ExampleAds", parsed[KeyAdSystem])
	require.Equal(t, "Spring Sale", parsed[KeyAdTitle])
	require.Equal(t, 30, parsed[KeyDuration])
	require.Equal(t, []string{
		"https://track.example.com/imp?id=1",
		"https://track.example.com/imp?id=2",
	}, parsed[KeyImpressions])

	media, ok := parsed[KeyMediaFiles].([]map[string]any)
	require.True(t, ok)
	require.Len(t, media, 1)
	require.Equal(t, "https://cdn.example.com/ad.mp4", media[0]["url"])
	require.Equal(t, "video/mp4", media[0]["type"])
	require.Equal(t, 1200, media[0]["bitrate"])
}

func TestParseWrapper(t *testing.T) {
	t.Parallel()

	parsed, err := New().Parse(wrapperDoc)
	require.NoError(t, err)

	require.Equal(t, true, parsed[KeyWrapper])
	require.Equal(t, "https://other.example.com/vast", parsed[KeyAdTagURI])
	require.Equal(t, "UpstreamNet", parsed[KeyAdSystem])
}

func TestParseRejectsMalformedXML(t *testing.T) {
	t.Parallel()

	_, err := New().Parse("<VAST><Ad></VAST>")
	require.Error(t, err)
}

func TestParseRejectsAdlessDocument(t *testing.T) {
	t.Parallel()

	_, err := New().Parse(`<VAST version="3.0"></VAST>`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no ads")
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"00:00:30", 30},
		{"00:01:05", 65},
		{"01:00:00", 3600},
		{"00:00:15.500", 15},
		{"", 0},
		{"30", 0},
		{"aa:bb:cc", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, parseDuration(tc.in), "input %q", tc.in)
	}
}
