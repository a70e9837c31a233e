package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reMarker   = regexp.MustCompile(`(?i)identification de la personne|extrait (kbis|d.immatriculation)|registre du commerce`)
	reSiren    = regexp.MustCompile(`\b\d{3} ?\d{3} ?\d{3}\b`)
	reDate     = regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`)
	reEuros    = regexp.MustCompile(`(?i)\d[\d\s.,]* euros?\b`)
	reBoxNoise = regexp.MustCompile(`(?m)^[ \t│┃─━┌┐└┘├┤┬┴┼|_=\-]{3,}[ \t]*$`)
)

// heuristicConfidence scores how much the text looks like a registry extract.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2)
	if reMarker.MatchString(txt) {
		score += 0.2
	}
	if reSiren.MatchString(txt) {
		score += 0.15
	}
	if reDate.MatchString(txt) {
		score += 0.15
	}
	if reEuros.MatchString(txt) {
		score += 0.1
	}
	if len(strings.TrimSpace(txt)) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// meanTSVConfidence averages the word confidences of tesseract TSV output into 0..1.
// Rows with conf -1 are layout rows and are skipped.
func meanTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := strings.TrimSpace(cols[10])
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}

func blendConfidence(ocrConf, heurConf float32) float32 {
	conf := heurConf
	if ocrConf > 0 {
		conf = 0.7*ocrConf + 0.3*heurConf
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
