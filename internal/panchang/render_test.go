package panchang

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_EmptyFields(t *testing.T) {
	out, err := RenderString("Mumbai", "2026-10-18", Fields{})
	require.NoError(t, err)

	assert.Contains(t, out, "Namaste, here is your daily panchang for Mumbai:")
	for _, title := range []string{TitleCalendar, TitleSunMoon, TitleElements, TitleTimings, TitleDirections} {
		assert.Contains(t, out, title)
	}
	assert.NotContains(t, out, TitleMoonAbode)
	assert.NotContains(t, out, TitleShraddha)

	// Header falls back to the requested city and date.
	assert.Contains(t, out, "<h2>Mumbai</h2>")
	assert.Contains(t, out, "<p>2026-10-18</p>")
	assert.Contains(t, out, "MyPanchang")
}

func TestRender_FeedHeaderWins(t *testing.T) {
	f := Fields{Location: present("Mumbai, Maharashtra"), Date: present("Sunday, October 18, 2026")}

	out, err := RenderString("Mumbai", "2026-10-18", f)
	require.NoError(t, err)

	assert.Contains(t, out, "<h2>Mumbai, Maharashtra</h2>")
	assert.Contains(t, out, "<p>Sunday, October 18, 2026</p>")
	assert.NotContains(t, out, "2026-10-18")
}

func TestRender_ConditionalSections(t *testing.T) {
	out, err := RenderString("Pune", "2026-10-18", Parse(sampleFeed))
	require.NoError(t, err)

	assert.Contains(t, out, TitleMoonAbode)
	assert.Contains(t, out, "Moon abode: Chitra 3")
	assert.Contains(t, out, "Moon abode: Chitra 4")
	assert.Contains(t, out, TitleShraddha)
	assert.Contains(t, out, "Shraddha Tithi: Saptami")

	assert.Contains(t, out, "Sunrise/Sunset: 06:27 / 18:09")
	assert.Contains(t, out, "Chitra till 22:16")

	// Elements follow the Paksha line in feed order.
	paksha := strings.Index(out, "Shukla Paksha")
	shashti := strings.Index(out, "Shashti till 14:01")
	ganda := strings.Index(out, "Ganda till 07:58")
	assert.True(t, paksha < shashti && shashti < ganda, "element order: %d %d %d", paksha, shashti, ganda)
}

func TestRender_EscapesFeedText(t *testing.T) {
	f := Fields{Tamil: present("Tamil: <b>Aippasi</b>")}

	out, err := RenderString("X", "2026-10-18", f)
	require.NoError(t, err)

	assert.Contains(t, out, "Tamil: &lt;b&gt;Aippasi&lt;/b&gt;")
}
