package panchang

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	sunEmoji  = "🔆"
	moonEmoji = "🌙"
)

// Field is an optional line of the digest. The zero value is absent.
type Field struct {
	Value   string
	Present bool
}

func present(v string) Field { return Field{Value: v, Present: true} }

// Element is a "<name> till <time>" line such as a tithi, nakshatra, yoga or karana.
// Name is the lowercased text before " till".
type Element struct {
	Name string
	Line string
}

// Fields is everything Parse recognises in a feed response. Coverage varies by location and
// date, so any field may be absent.
type Fields struct {
	// Positional header lines.
	Location       Field
	Date           Field
	Shaka          Field
	VikramiNorth   Field
	VikramiGujarat Field

	Tamil           Field
	Paksha          Field
	SunriseSunset   Field
	MoonriseMoonset Field
	Sun             Field
	Moon            Field
	SayanaSun       Field
	SunStar         Field

	Rahukalam    Field
	Yamagandam   Field
	Gulikai      Field
	Abhijit      Field
	Durmuhurtham Field
	Varjyam      Field
	Amritkalam   Field

	DikShoolai Field
	KaalVaasa  Field
	RahuVaasa  Field
	Agnivasa   Field

	ShraddhaTithi Field

	// Elements keeps the remaining "till" lines in feed order.
	Elements  []Element
	MoonAbode []string
}

// timingKeys are the named "till" windows, tested in order.
var timingKeys = []struct {
	marker string
	field  func(*Fields) *Field
}{
	{"Rahukalam:", func(f *Fields) *Field { return &f.Rahukalam }},
	{"Yamagandam:", func(f *Fields) *Field { return &f.Yamagandam }},
	{"Gulikai:", func(f *Fields) *Field { return &f.Gulikai }},
	{"Abhijit:", func(f *Fields) *Field { return &f.Abhijit }},
	{"Durmuhurtham:", func(f *Fields) *Field { return &f.Durmuhurtham }},
	{"Varjyam:", func(f *Fields) *Field { return &f.Varjyam }},
	{"Amritkalam:", func(f *Fields) *Field { return &f.Amritkalam }},
}

// Parse extracts Fields from a raw feed response.
//
// The first five non-empty lines are taken by position (location, date, Shaka, Vikrami north,
// Vikrami Gujarat) without validation. Every later line goes to the first rule whose marker it
// contains; lines matching no rule are dropped. Parse never fails: malformed input only yields
// fewer present fields.
func Parse(raw string) Fields {
	lines := splitLines(extractText(raw))

	var f Fields
	header := []*Field{&f.Location, &f.Date, &f.Shaka, &f.VikramiNorth, &f.VikramiGujarat}
	for i, dst := range header {
		if i >= len(lines) {
			return f
		}
		*dst = present(lines[i])
	}

	for _, line := range lines[len(header):] {
		classify(&f, line)
	}
	return f
}

func classify(f *Fields, line string) {
	switch {
	case strings.Contains(line, sunEmoji):
		f.SunriseSunset = present(strings.TrimSpace(strings.ReplaceAll(line, sunEmoji, "")))
	case strings.Contains(line, moonEmoji):
		f.MoonriseMoonset = present(strings.TrimSpace(strings.ReplaceAll(line, moonEmoji, "")))
	case strings.Contains(line, "Tamil:"):
		f.Tamil = present(line)
	case strings.Contains(line, "Paksha"):
		f.Paksha = present(line)
	case strings.Contains(line, "till"):
		classifyTimed(f, line)
	case strings.Contains(line, "Sun:"):
		f.Sun = present(line)
	case strings.Contains(line, "Moon:"):
		f.Moon = present(line)
	case strings.Contains(line, "Sayana Sun:"):
		// Never matches: every "Sayana Sun:" line already contains "Sun:".
		f.SayanaSun = present(line)
	case strings.Contains(line, "Sun Star:"):
		f.SunStar = present(line)
	case strings.Contains(line, "DikShoolai:"):
		f.DikShoolai = present(line)
	case strings.Contains(line, "Kaal Vaasa:"):
		f.KaalVaasa = present(line)
	case strings.Contains(line, "Rahu Vaasa:"):
		f.RahuVaasa = present(line)
	case strings.Contains(line, "Agnivasa:"):
		f.Agnivasa = present(line)
	case strings.Contains(line, "Moon abode:"):
		f.MoonAbode = append(f.MoonAbode, line)
	case strings.Contains(line, "Shraddha Tithi"):
		f.ShraddhaTithi = present(line)
	}
}

func classifyTimed(f *Fields, line string) {
	for _, k := range timingKeys {
		if strings.Contains(line, k.marker) {
			*k.field(f) = present(line)
			return
		}
	}

	name, _, _ := strings.Cut(line, " till")
	f.Elements = append(f.Elements, Element{Name: strings.ToLower(name), Line: line})
}

// extractText returns the concatenated text nodes of an HTML fragment with entities decoded.
// Tags contribute no separators; script and style bodies are skipped.
func extractText(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))

	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF, or malformed input: keep whatever was read.
			return b.String()
		case html.StartTagToken:
			if isRawTextTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawTextTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawTextTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style:
		return true
	}
	return false
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
