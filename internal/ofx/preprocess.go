package ofx

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	reSTMTTRN = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	reOpenTag = regexp.MustCompile(`(?i)<STMTTRN>`)
)

// tagRE matches "<TAG>value" with or without a closing tag (SGML and XML).
func tagRE(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)<` + tag + `>\s*([^<\r\n]+)`)
}

func tagValue(block, tag string) string {
	if m := tagRE(tag).FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Decode normalizes raw OFX bytes to UTF-8 text with \n line endings.
// Brazilian OFX usually arrives as Latin-1/CP1252; valid UTF-8 is kept as-is.
func Decode(raw []byte) string {
	var text string
	if utf8.Valid(raw) {
		text = string(raw)
	} else {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			decoded, _ = charmap.ISO8859_1.NewDecoder().Bytes(raw)
		}
		text = string(decoded)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Preprocess decodes the file and guarantees every STMTTRN block carries a
// FITID. Some banks omit it; a deterministic one is derived from the block
// contents plus the block index so reimports stay idempotent.
func Preprocess(raw []byte) string {
	text := Decode(raw)

	idx := 0
	return reSTMTTRN.ReplaceAllStringFunc(text, func(block string) string {
		defer func() { idx++ }()
		if tagRE("FITID").MatchString(block) {
			return block
		}
		seed := fmt.Sprintf("%s|%s|%s|%s|%s|#%d",
			tagValue(block, "DTPOSTED"),
			tagValue(block, "TRNAMT"),
			tagValue(block, "NAME"),
			tagValue(block, "MEMO"),
			tagValue(block, "CHECKNUM"),
			idx,
		)
		fitid := sha1Hex(seed)[:28]
		return reOpenTag.ReplaceAllString(block, "<STMTTRN>\n<FITID>"+fitid+"\n")
	})
}

// FitIDUnico sufixa um FITID reaproveitado pelo banco com data e centavos,
// para distinguir transações reais que colidiram no identificador.
func FitIDUnico(original string, data string, cents int64) string {
	base := original
	if base == "" {
		base = "NOFITID"
	}
	return fmt.Sprintf("%s__%s_%d", base, data, cents)
}
