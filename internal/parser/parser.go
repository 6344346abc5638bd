// Package parser turns raw VAST XML into a generic document map.
package parser

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Document field keys produced by Parse.
const (
	KeyVersion     = "version"
	KeyAdID        = "adId"
	KeyAdSystem    = "adSystem"
	KeyAdTitle     = "adTitle"
	KeyDuration    = "durationSeconds"
	KeyImpressions = "impressions"
	KeyErrorURLs   = "errorUrls"
	KeyMediaFiles  = "mediaFiles"
	KeyWrapper     = "wrapper"
	KeyAdTagURI    = "vastAdTagUri"
)

// VAST mirrors the subset of the VAST 2.0-4.x schema this service reads.
// Unknown elements are ignored, which keeps parsing lenient across the
// versions ad servers actually emit.
type VAST struct {
	XMLName xml.Name `xml:"VAST"`
	Version string   `xml:"version,attr"`
	Ads     []Ad     `xml:"Ad"`
}

// Ad is one ad entry, inline or wrapper.
type Ad struct {
	ID      string   `xml:"id,attr"`
	InLine  *AdBody  `xml:"InLine"`
	Wrapper *Wrapper `xml:"Wrapper"`
}

// AdBody holds the creative payload of an inline ad.
type AdBody struct {
	AdSystem    string     `xml:"AdSystem"`
	AdTitle     string     `xml:"AdTitle"`
	Impressions []string   `xml:"Impression"`
	Errors      []string   `xml:"Error"`
	Creatives   []Creative `xml:"Creatives>Creative"`
}

// Wrapper points at another VAST document.
type Wrapper struct {
	AdSystem    string   `xml:"AdSystem"`
	AdTagURI    string   `xml:"VASTAdTagURI"`
	Impressions []string `xml:"Impression"`
	Errors      []string `xml:"Error"`
}

// Creative carries the linear portion used for duration and media files.
type Creative struct {
	Linear *Linear `xml:"Linear"`
}

// Linear is the linear creative body.
type Linear struct {
	Duration   string      `xml:"Duration"`
	MediaFiles []MediaFile `xml:"MediaFiles>MediaFile"`
}

// MediaFile is one renderable asset.
type MediaFile struct {
	URL     string `xml:",chardata"`
	Type    string `xml:"type,attr"`
	Bitrate int    `xml:"bitrate,attr"`
	Width   int    `xml:"width,attr"`
	Height  int    `xml:"height,attr"`
}

// Parser implements vast.Parser on encoding/xml.
type Parser struct{}

// New returns a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse decodes raw VAST XML into the generic document map consumed by
// filters and trackers. A document with no ads is a parse error: by the
// time parsing runs, an empty response has already been rejected upstream,
// so an ad-less document here means unusable content.
func (p *Parser) Parse(raw string) (map[string]any, error) {
	var doc VAST
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode vast xml: %w", err)
	}
	if len(doc.Ads) == 0 {
		return nil, fmt.Errorf("vast document %q contains no ads", doc.Version)
	}

	ad := doc.Ads[0]
	parsed := map[string]any{
		KeyVersion: doc.Version,
		KeyAdID:    ad.ID,
	}

	switch {
	case ad.InLine != nil:
		body := ad.InLine
		parsed[KeyWrapper] = false
		parsed[KeyAdSystem] = strings.TrimSpace(body.AdSystem)
		parsed[KeyAdTitle] = strings.TrimSpace(body.AdTitle)
		parsed[KeyImpressions] = trimAll(body.Impressions)
		parsed[KeyErrorURLs] = trimAll(body.Errors)
		parsed[KeyDuration], parsed[KeyMediaFiles] = flattenCreatives(body.Creatives)
	case ad.Wrapper != nil:
		wrapper := ad.Wrapper
		parsed[KeyWrapper] = true
		parsed[KeyAdSystem] = strings.TrimSpace(wrapper.AdSystem)
		parsed[KeyAdTagURI] = strings.TrimSpace(wrapper.AdTagURI)
		parsed[KeyImpressions] = trimAll(wrapper.Impressions)
		parsed[KeyErrorURLs] = trimAll(wrapper.Errors)
	default:
		return nil, fmt.Errorf("ad %q has neither InLine nor Wrapper", ad.ID)
	}
	return parsed, nil
}

func flattenCreatives(creatives []Creative) (int, []map[string]any) {
	duration := 0
	var media []map[string]any
	for _, creative := range creatives {
		if creative.Linear == nil {
			continue
		}
		if duration == 0 {
			duration = parseDuration(creative.Linear.Duration)
		}
		for _, mf := range creative.Linear.MediaFiles {
			url := strings.TrimSpace(mf.URL)
			if url == "" {
				continue
			}
			media = append(media, map[string]any{
				"url":     url,
				"type":    mf.Type,
				"bitrate": mf.Bitrate,
				"width":   mf.Width,
				"height":  mf.Height,
			})
		}
	}
	return duration, media
}

// parseDuration reads HH:MM:SS(.mmm) into whole seconds; malformed values
// collapse to zero rather than failing the document.
func parseDuration(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if dot := strings.IndexByte(value, '.'); dot >= 0 {
		value = value[:dot]
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

func trimAll(values []string) []string {
	var out []string
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
