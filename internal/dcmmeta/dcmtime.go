package dcmmeta

import (
	"fmt"
	"strconv"
	"strings"
)

// DcmTimeToSec converts a DICOM TM value (HHMMSS.FFFFFF, trailing fields
// optional) to seconds since midnight. The pre-2000 "HH:MM:SS" form is
// accepted as well.
func DcmTimeToSec(tm string) (float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(tm, ":", ""))
	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) == 0 || len(whole) > 6 || len(whole)%2 != 0 {
		return 0, fmt.Errorf("invalid DICOM time %q", tm)
	}
	if hasFrac && len(whole) != 6 {
		return 0, fmt.Errorf("invalid DICOM time %q: fraction without seconds", tm)
	}

	limits := []int{24, 60, 61}
	weights := []int{3600, 60, 1}
	total := 0
	for i := 0; i < len(whole)/2; i++ {
		n, err := strconv.Atoi(whole[2*i : 2*i+2])
		if err != nil || n < 0 || n >= limits[i] {
			return 0, fmt.Errorf("invalid DICOM time %q", tm)
		}
		total += n * weights[i]
	}

	sec := float64(total)
	if hasFrac && frac != "" {
		if strings.Trim(frac, "0123456789") != "" {
			return 0, fmt.Errorf("invalid DICOM time %q", tm)
		}
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid DICOM time %q: %w", tm, err)
		}
		sec += f
	}
	return sec, nil
}
