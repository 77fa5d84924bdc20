// Package policy holds the pure decision logic for choosing an output
// format and quality from client capabilities and image statistics.
package policy

import "go-image-optimizer/pkg/models"

// DefaultFormatOrder is the preference order used when the caller does not
// supply one: modern formats first, jpeg as the universal fallback.
var DefaultFormatOrder = []models.Format{
	models.FormatAVIF,
	models.FormatWebP,
	models.FormatJPEG,
}

// ResolveFormat scans preferred in order and returns the first format the
// client supports. Legacy formats (jpeg/png/gif) are always considered
// supported; the ultimate fallback is jpeg.
func ResolveFormat(preferred []models.Format, caps models.Capabilities) models.Format {
	if len(preferred) == 0 {
		preferred = DefaultFormatOrder
	}
	for _, f := range preferred {
		switch f {
		case models.FormatAVIF:
			if caps.SupportsAVIF {
				return f
			}
		case models.FormatWebP:
			if caps.SupportsWebP {
				return f
			}
		case models.FormatJPEG, models.FormatPNG, models.FormatGIF:
			return f
		}
	}
	return models.FormatJPEG
}
