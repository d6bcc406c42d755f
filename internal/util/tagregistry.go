// Package util provides DICOM keyword lookup and small helpers shared by the
// decoder and the synthetic series generator.
package util

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagRole says what a well-known attribute is used for when stacking.
type TagRole int

const (
	// RoleGeometry marks attributes that place a slice in patient space.
	RoleGeometry TagRole = iota
	// RoleOrdering marks attributes commonly used to order time or vector axes.
	RoleOrdering
	// RoleSeries marks attributes identifying the series a slice belongs to.
	RoleSeries
	// RoleOther marks any other attribute known to the dictionary.
	RoleOther
)

// String returns the string representation of a TagRole.
func (r TagRole) String() string {
	switch r {
	case RoleGeometry:
		return "Geometry"
	case RoleOrdering:
		return "Ordering"
	case RoleSeries:
		return "Series"
	case RoleOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// TagInfo describes a DICOM attribute by keyword.
type TagInfo struct {
	Name string
	Tag  tag.Tag
	Role TagRole
}

// tagRegistry maps lowercase keywords to the attributes the stacker cares about.
var tagRegistry = map[string]TagInfo{
	"rows":                    {Name: "Rows", Tag: tag.Rows, Role: RoleGeometry},
	"columns":                 {Name: "Columns", Tag: tag.Columns, Role: RoleGeometry},
	"pixelspacing":            {Name: "PixelSpacing", Tag: tag.PixelSpacing, Role: RoleGeometry},
	"imageorientationpatient": {Name: "ImageOrientationPatient", Tag: tag.ImageOrientationPatient, Role: RoleGeometry},
	"imagepositionpatient":    {Name: "ImagePositionPatient", Tag: tag.ImagePositionPatient, Role: RoleGeometry},
	"slicethickness":          {Name: "SliceThickness", Tag: tag.SliceThickness, Role: RoleGeometry},
	"spacingbetweenslices":    {Name: "SpacingBetweenSlices", Tag: tag.SpacingBetweenSlices, Role: RoleGeometry},
	"slicelocation":           {Name: "SliceLocation", Tag: tag.SliceLocation, Role: RoleGeometry},

	"echotime":                   {Name: "EchoTime", Tag: tag.EchoTime, Role: RoleOrdering},
	"echonumbers":                {Name: "EchoNumbers", Tag: tag.EchoNumbers, Role: RoleOrdering},
	"repetitiontime":             {Name: "RepetitionTime", Tag: tag.RepetitionTime, Role: RoleOrdering},
	"inversiontime":              {Name: "InversionTime", Tag: tag.InversionTime, Role: RoleOrdering},
	"flipangle":                  {Name: "FlipAngle", Tag: tag.FlipAngle, Role: RoleOrdering},
	"triggertime":                {Name: "TriggerTime", Tag: tag.TriggerTime, Role: RoleOrdering},
	"acquisitiontime":            {Name: "AcquisitionTime", Tag: tag.AcquisitionTime, Role: RoleOrdering},
	"acquisitionnumber":          {Name: "AcquisitionNumber", Tag: tag.AcquisitionNumber, Role: RoleOrdering},
	"contenttime":                {Name: "ContentTime", Tag: tag.ContentTime, Role: RoleOrdering},
	"temporalpositionidentifier": {Name: "TemporalPositionIdentifier", Tag: tag.TemporalPositionIdentifier, Role: RoleOrdering},
	"instancenumber":             {Name: "InstanceNumber", Tag: tag.InstanceNumber, Role: RoleOrdering},
	"imagetype":                  {Name: "ImageType", Tag: tag.ImageType, Role: RoleOrdering},

	"seriesinstanceuid": {Name: "SeriesInstanceUID", Tag: tag.SeriesInstanceUID, Role: RoleSeries},
	"seriesnumber":      {Name: "SeriesNumber", Tag: tag.SeriesNumber, Role: RoleSeries},
	"seriesdescription": {Name: "SeriesDescription", Tag: tag.SeriesDescription, Role: RoleSeries},
	"protocolname":      {Name: "ProtocolName", Tag: tag.ProtocolName, Role: RoleSeries},
	"sequencename":      {Name: "SequenceName", Tag: tag.SequenceName, Role: RoleSeries},
}

// GetTagByName returns TagInfo for a DICOM keyword.
// The lookup is case-insensitive for the attributes above and falls back to the
// full dictionary by exact keyword. If nothing matches, the error suggests the
// closest well-known keyword (using Levenshtein distance).
func GetTagByName(name string) (TagInfo, error) {
	trimmed := strings.TrimSpace(name)
	normalizedName := strings.ToLower(trimmed)

	if info, ok := tagRegistry[normalizedName]; ok {
		return info, nil
	}
	if info, err := tag.FindByName(trimmed); err == nil {
		return TagInfo{Name: info.Name, Tag: info.Tag, Role: RoleOther}, nil
	}

	suggestion := findClosestTagName(normalizedName)
	if suggestion != "" {
		return TagInfo{}, fmt.Errorf("unknown tag %q, did you mean %q?", name, suggestion)
	}

	return TagInfo{}, fmt.Errorf("unknown tag %q", name)
}

// KeywordOf returns the dictionary keyword of t, or "" for private and unknown
// tags.
func KeywordOf(t tag.Tag) string {
	if t.Group%2 == 1 {
		return ""
	}
	info, err := tag.Find(t)
	if err != nil {
		return ""
	}
	return info.Name
}

// findClosestTagName finds the closest matching keyword using Levenshtein distance.
// Returns empty string if no close match is found (distance > 5).
func findClosestTagName(input string) string {
	const maxDistance = 5
	bestDistance := maxDistance + 1
	var bestMatch string

	for key, info := range tagRegistry {
		distance := levenshteinDistance(input, key)
		if distance < bestDistance || (distance == bestDistance && info.Name < bestMatch) {
			bestDistance = distance
			bestMatch = info.Name
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance is the minimum number of single-byte edits turning a
// into b.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two rows are enough since each row only reads the previous one.
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			cur[j] = min(
				prev[j]+1,      // deletion
				cur[j-1]+1,     // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, cur = cur, prev
	}

	return prev[len(b)]
}
