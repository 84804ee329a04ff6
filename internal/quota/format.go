package quota

// Export formats. PNG is the raster path and is exempt from quota
// accounting: it neither checks nor increments the ledger. The three
// vector formats are metered.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
	FormatPDF = "pdf"
	FormatEPS = "eps"
)

func ValidFormat(f string) bool {
	switch f {
	case FormatPNG, FormatSVG, FormatPDF, FormatEPS:
		return true
	}
	return false
}

// Metered reports whether exporting the format consumes quota.
func Metered(f string) bool {
	return ValidFormat(f) && f != FormatPNG
}
