package util

import (
	"strings"
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestGetTagByName_Valid(t *testing.T) {
	tests := []struct {
		name         string
		expectedTag  tag.Tag
		expectedRole TagRole
	}{
		{"Rows", tag.Rows, RoleGeometry},
		{"Columns", tag.Columns, RoleGeometry},
		{"PixelSpacing", tag.PixelSpacing, RoleGeometry},
		{"ImageOrientationPatient", tag.ImageOrientationPatient, RoleGeometry},
		{"ImagePositionPatient", tag.ImagePositionPatient, RoleGeometry},

		{"EchoTime", tag.EchoTime, RoleOrdering},
		{"RepetitionTime", tag.RepetitionTime, RoleOrdering},
		{"AcquisitionTime", tag.AcquisitionTime, RoleOrdering},
		{"TriggerTime", tag.TriggerTime, RoleOrdering},
		{"InstanceNumber", tag.InstanceNumber, RoleOrdering},

		{"SeriesInstanceUID", tag.SeriesInstanceUID, RoleSeries},
		{"SeriesDescription", tag.SeriesDescription, RoleSeries},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, err := GetTagByName(tc.name)
			if err != nil {
				t.Fatalf("GetTagByName(%q) returned error: %v", tc.name, err)
			}
			if info.Tag != tc.expectedTag {
				t.Errorf("GetTagByName(%q).Tag = %v, want %v", tc.name, info.Tag, tc.expectedTag)
			}
			if info.Role != tc.expectedRole {
				t.Errorf("GetTagByName(%q).Role = %v, want %v", tc.name, info.Role, tc.expectedRole)
			}
			if info.Name != tc.name {
				t.Errorf("GetTagByName(%q).Name = %q, want %q", tc.name, info.Name, tc.name)
			}
		})
	}
}

func TestGetTagByName_DictionaryFallback(t *testing.T) {
	info, err := GetTagByName("PatientName")
	if err != nil {
		t.Fatalf("GetTagByName(PatientName) returned error: %v", err)
	}
	if info.Tag != tag.PatientName || info.Role != RoleOther {
		t.Errorf("GetTagByName(PatientName) = %+v, want the dictionary entry with RoleOther", info)
	}
}

func TestGetTagByName_Invalid(t *testing.T) {
	invalidNames := []string{
		"InvalidTagName",
		"NotATag",
		"",
		"   ",
		"EchoTimeXYZ",
	}

	for _, name := range invalidNames {
		t.Run(name, func(t *testing.T) {
			_, err := GetTagByName(name)
			if err == nil {
				t.Errorf("GetTagByName(%q) should return error for invalid tag", name)
			}
		})
	}
}

func TestGetTagByName_Suggestion(t *testing.T) {
	tests := []struct {
		typo       string
		suggestion string
	}{
		{"EchoTme", "EchoTime"},
		{"EhcoTime", "EchoTime"},
		{"PixelSpaceing", "PixelSpacing"},
		{"ImagePositonPatient", "ImagePositionPatient"},
		{"SeriesDescritpion", "SeriesDescription"},
		{"AcquistionTime", "AcquisitionTime"},
	}

	for _, tc := range tests {
		t.Run(tc.typo, func(t *testing.T) {
			_, err := GetTagByName(tc.typo)
			if err == nil {
				t.Fatalf("GetTagByName(%q) should return error", tc.typo)
			}
			if !strings.Contains(err.Error(), tc.suggestion) {
				t.Errorf("Error for %q should suggest %q, got: %v", tc.typo, tc.suggestion, err)
			}
		})
	}
}

func TestGetTagByName_CaseInsensitive(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"echotime", "EchoTime"},
		{"ECHOTIME", "EchoTime"},
		{"eChOtImE", "EchoTime"},
		{"imagepositionpatient", "ImagePositionPatient"},
		{" acquisitiontime ", "AcquisitionTime"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			info, err := GetTagByName(tc.input)
			if err != nil {
				t.Fatalf("GetTagByName(%q) returned error: %v", tc.input, err)
			}
			if info.Name != tc.expected {
				t.Errorf("GetTagByName(%q).Name = %q, want %q", tc.input, info.Name, tc.expected)
			}
		})
	}
}

func TestKeywordOf(t *testing.T) {
	tests := []struct {
		tag      tag.Tag
		expected string
	}{
		{tag.EchoTime, "EchoTime"},
		{tag.ImagePositionPatient, "ImagePositionPatient"},
		{tag.Tag{Group: 0x0009, Element: 0x0010}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.tag.String(), func(t *testing.T) {
			if got := KeywordOf(tc.tag); got != tc.expected {
				t.Errorf("KeywordOf(%v) = %q, want %q", tc.tag, got, tc.expected)
			}
		})
	}
}

func TestTagRole_String(t *testing.T) {
	tests := []struct {
		role     TagRole
		expected string
	}{
		{RoleGeometry, "Geometry"},
		{RoleOrdering, "Ordering"},
		{RoleSeries, "Series"},
		{RoleOther, "Other"},
		{TagRole(42), "Unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			if tc.role.String() != tc.expected {
				t.Errorf("TagRole.String() = %q, want %q", tc.role.String(), tc.expected)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"EchoTime", "EhcoTime", 2}, // transposition counts as 2 in standard Levenshtein
	}

	for _, tc := range tests {
		t.Run(tc.a+"_"+tc.b, func(t *testing.T) {
			result := levenshteinDistance(tc.a, tc.b)
			if result != tc.expected {
				t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tc.a, tc.b, result, tc.expected)
			}
		})
	}
}
