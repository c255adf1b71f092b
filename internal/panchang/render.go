package panchang

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

// Section titles of the rendered digest.
const (
	TitleCalendar   = "Calendar Systems"
	TitleSunMoon    = "☀️ Sun and Moon Timings"
	TitleElements   = "Panchang Elements"
	TitleTimings    = "⏰ Important Timings"
	TitleDirections = "🧭 Directional Information"
	TitleMoonAbode  = "🌙 Moon Abode"
	TitleShraddha   = "Shraddha Tithi"
)

//go:embed templates/digest.html
var templateFS embed.FS

var digestTemplate = template.Must(template.ParseFS(templateFS, "templates/digest.html"))

type section struct {
	Title string
	Lines []string
}

type digestView struct {
	City     string
	Heading  string
	Date     string
	Sections []section
}

// Render writes the HTML digest for f. Heading and date fall back to cityName and date when
// the feed did not supply them; every other missing field renders as an empty line.
func Render(w io.Writer, cityName, date string, f Fields) error {
	if err := digestTemplate.ExecuteTemplate(w, "digest", newDigestView(cityName, date, f)); err != nil {
		return fmt.Errorf("panchang: rendering digest: %w", err)
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(cityName, date string, f Fields) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, cityName, date, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func newDigestView(cityName, date string, f Fields) digestView {
	v := digestView{
		City:    cityName,
		Heading: orDefault(f.Location, cityName),
		Date:    orDefault(f.Date, date),
	}

	elements := []string{f.Paksha.Value}
	for _, e := range f.Elements {
		elements = append(elements, e.Line)
	}

	v.Sections = []section{
		{TitleCalendar, values(f.Shaka, f.VikramiNorth, f.VikramiGujarat, f.Tamil)},
		{TitleSunMoon, append([]string{
			"Sunrise/Sunset: " + f.SunriseSunset.Value,
			"Moonrise/Moonset: " + f.MoonriseMoonset.Value,
		}, values(f.Sun, f.Moon, f.SayanaSun, f.SunStar)...)},
		{TitleElements, elements},
		{TitleTimings, values(f.Rahukalam, f.Yamagandam, f.Gulikai, f.Abhijit, f.Durmuhurtham, f.Varjyam, f.Amritkalam)},
		{TitleDirections, values(f.DikShoolai, f.KaalVaasa, f.RahuVaasa, f.Agnivasa)},
	}
	if len(f.MoonAbode) > 0 {
		v.Sections = append(v.Sections, section{TitleMoonAbode, f.MoonAbode})
	}
	if f.ShraddhaTithi.Present {
		v.Sections = append(v.Sections, section{TitleShraddha, []string{f.ShraddhaTithi.Value}})
	}
	return v
}

func values(fields ...Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Value
	}
	return out
}

func orDefault(f Field, fallback string) string {
	if f.Present {
		return f.Value
	}
	return fallback
}
